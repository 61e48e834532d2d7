package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestID_AcceptsStringsAndNumbers(t *testing.T) {
	req := require.New(t)

	var frame struct {
		ConversationID ID `json:"conversationId"`
	}

	req.NoError(json.Unmarshal([]byte(`{"conversationId":42}`), &frame))
	req.Equal(ID("42"), frame.ConversationID)

	req.NoError(json.Unmarshal([]byte(`{"conversationId":"c-1"}`), &frame))
	req.Equal(ID("c-1"), frame.ConversationID)

	req.NoError(json.Unmarshal([]byte(`{"conversationId":null}`), &frame))
	req.Equal(ID(""), frame.ConversationID)

	req.Error(json.Unmarshal([]byte(`{"conversationId":{"a":1}}`), &frame))
}

func TestMessage_Before(t *testing.T) {
	req := require.New(t)
	now := time.Unix(1_700_000_000, 0)

	a := &Message{ID: "a", CreatedAt: now}
	b := &Message{ID: "b", CreatedAt: now}
	c := &Message{ID: "0", CreatedAt: now.Add(time.Nanosecond)}

	req.True(a.Before(b))
	req.False(b.Before(a))
	req.True(b.Before(c))
}

func TestCreateConversationRequest_Validate(t *testing.T) {
	req := require.New(t)

	r := &CreateConversationRequest{Title: "  team ", Participants: []string{"u1", " u2", "u1", ""}}
	req.NoError(r.Validate())
	req.Equal("team", r.Title)
	req.Equal([]string{"u1", "u2"}, r.Participants)
	req.Equal(ConversationDirect, r.Kind())

	r = &CreateConversationRequest{Participants: []string{"u1", "u2", "u3"}}
	req.NoError(r.Validate())
	req.Equal(ConversationGroup, r.Kind())

	r = &CreateConversationRequest{Participants: []string{"u1", "u1"}}
	req.Error(r.Validate())
}
