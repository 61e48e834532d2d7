package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
)

func TestConversationService_Create(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newStack(t)

	conv, err := s.convs.Create(ctx, models.CreateConversationRequest{
		Title:        "ops",
		Participants: []string{"alice", "bob", "carol"},
	})
	req.NoError(err)
	req.Equal(models.ConversationGroup, conv.Kind)

	members, err := s.index.MembersOf(ctx, conv.ID)
	req.NoError(err)
	req.Equal([]string{"alice", "bob", "carol"}, members)

	got, err := s.convs.Get(ctx, conv.ID)
	req.NoError(err)
	req.Equal("ops", *got.Title)
}

func TestConversationService_CreateIsVisibleToContacts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newStack(t)
	s.conversation(t, "alice", "bob")

	contacts, err := s.index.Contacts(ctx, "alice")
	req.NoError(err)
	req.Equal([]string{"bob"}, contacts)

	s.conversation(t, "alice", "carol")

	contacts, err = s.index.Contacts(ctx, "alice")
	req.NoError(err)
	req.ElementsMatch([]string{"bob", "carol"}, contacts)
}

func TestConversationService_CreateValidates(t *testing.T) {
	s := newStack(t)

	_, err := s.convs.Create(context.Background(), models.CreateConversationRequest{Participants: []string{"alice"}})

	require.ErrorIs(t, err, pkg.ErrBadRequest)
}
