package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/ratelimit"
)

// fakeStore, MessageStore'un bellek içi karşılığı.
type fakeStore struct {
	appendErr error
	appended  []*models.Message
	reads     map[string]bool
}

func (s *fakeStore) Append(_ context.Context, conversationID, senderID, content, contentType string) (*models.Message, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	msg := &models.Message{
		ID:             fmt.Sprintf("m%d", len(s.appended)+1),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    contentType,
		CreatedAt:      time.Now().UTC(),
	}
	s.appended = append(s.appended, msg)
	return msg, nil
}

func (s *fakeStore) MarkRead(_ context.Context, messageID, userID string) (*models.ReadResult, error) {
	for _, m := range s.appended {
		if m.ID != messageID {
			continue
		}
		if s.reads == nil {
			s.reads = map[string]bool{}
		}
		key := messageID + "/" + userID
		inserted := !s.reads[key]
		s.reads[key] = true
		return &models.ReadResult{
			Message:  m,
			Read:     models.MessageRead{MessageID: messageID, UserID: userID, ReadAt: time.Now().UTC()},
			Inserted: inserted,
		}, nil
	}
	return nil, fmt.Errorf("%w: message", pkg.ErrNotFound)
}

type hubFixture struct {
	hub   *Hub
	store *fakeStore
}

func newHubFixture(t *testing.T, limiter *ratelimit.Limiter) *hubFixture {
	t.Helper()
	store := &fakeStore{}
	hub := NewHub(store, newStaticMembership(map[string][]string{"c1": {"alice", "bob"}}), Options{
		WriteTimeout: time.Second,
		SendBuffer:   16,
		FrameLimiter: limiter,
	}, nil, testLogger())
	return &hubFixture{hub: hub, store: store}
}

// client, socket'siz bir Client; gönderilenler send kuyruğundan okunur.
func (f *hubFixture) client(t *testing.T, userID string) *Client {
	t.Helper()
	c, err := newClient(f.hub, nil, userID)
	require.NoError(t, err)
	f.hub.registry.Register(c)
	return c
}

func drain(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case frame := <-c.send:
			var ev map[string]any
			require.NoError(t, json.Unmarshal(frame, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_MessageFlow(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t, nil)
	alice, bob := f.client(t, "alice"), f.client(t, "bob")

	err := f.hub.handle(context.Background(), alice, &MessageFrame{ConversationID: "c1", Content: "hi", TempID: "t1"})

	req.NoError(err)
	aliceEvents := drain(t, alice)
	req.Len(aliceEvents, 1)
	req.Equal(TypeMessageSent, aliceEvents[0]["type"])
	req.Equal("m1", aliceEvents[0]["messageId"])

	bobEvents := drain(t, bob)
	req.Len(bobEvents, 1)
	req.Equal(TypeMessage, bobEvents[0]["type"])
}

func TestHub_AppendFailureSendsErrorAndFailedAck(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t, nil)
	f.store.appendErr = &pkg.StorageError{Op: "append", Err: errors.New("disk I/O error")}
	alice, bob := f.client(t, "alice"), f.client(t, "bob")

	err := f.hub.handle(context.Background(), alice, &MessageFrame{ConversationID: "c1", Content: "hi", TempID: "t1"})

	req.Error(err)
	events := drain(t, alice)
	req.Len(events, 2)
	req.Equal(TypeError, events[0]["type"])
	req.Equal(CodeStorageUnavailable, events[0]["code"])
	req.Equal("t1", events[0]["tempId"])
	req.Equal(StatusFailed, events[1]["status"])
	req.Empty(drain(t, bob))
}

func TestHub_RateLimitedMessage(t *testing.T) {
	req := require.New(t)
	limiter := ratelimit.New(2, time.Minute, time.Minute)
	defer limiter.Close()
	f := newHubFixture(t, limiter)
	alice := f.client(t, "alice")
	f.client(t, "bob")

	for range 2 {
		req.NoError(f.hub.handle(context.Background(), alice, &MessageFrame{ConversationID: "c1", Content: "hi"}))
	}
	drain(t, alice)

	err := f.hub.handle(context.Background(), alice, &MessageFrame{ConversationID: "c1", Content: "spam", TempID: "t3"})

	req.ErrorIs(err, pkg.ErrRateLimited)
	events := drain(t, alice)
	req.Equal(CodeRateLimited, events[0]["code"])
	req.Equal(StatusFailed, events[1]["status"])
	req.Len(f.store.appended, 2)
}

func TestHub_TypingRequiresMembership(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t, nil)
	mallory := f.client(t, "mallory")
	bob := f.client(t, "bob")

	err := f.hub.handle(context.Background(), mallory, &TypingFrame{ConversationID: "c1", IsTyping: true})

	req.ErrorIs(err, pkg.ErrForbidden)
	events := drain(t, mallory)
	req.Equal(CodeForbidden, events[0]["code"])
	req.Empty(drain(t, bob))
}

func TestHub_ReadReceiptOnlyOnFirstRead(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t, nil)
	alice, bob := f.client(t, "alice"), f.client(t, "bob")
	req.NoError(f.hub.handle(context.Background(), alice, &MessageFrame{ConversationID: "c1", Content: "hi"}))
	drain(t, alice)

	for range 3 {
		req.NoError(f.hub.handle(context.Background(), bob, &ReadFrame{MessageID: "m1"}))
	}

	receipts := drain(t, alice)
	req.Len(receipts, 1)
	req.Equal(TypeReadReceipt, receipts[0]["type"])
	req.Equal("bob", receipts[0]["readBy"])
}

func TestHub_ControlFrames(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t, nil)
	alice := f.client(t, "alice")

	req.NoError(f.hub.handle(context.Background(), alice, &PingFrame{}))
	req.Equal(TypePong, drain(t, alice)[0]["type"])

	req.ErrorIs(f.hub.handle(context.Background(), alice, &AuthFrame{Token: "x"}), pkg.ErrBadRequest)
	req.Equal(CodeBadRequest, drain(t, alice)[0]["code"])

	req.NoError(f.hub.handle(context.Background(), alice, &LogoutFrame{}))
	req.Equal(StateClosed, alice.State())
	req.ErrorIs(alice.Send([]byte("{}")), ErrConnectionClosed)
}

func TestHub_InvalidOptionsFallBackToDefaults(t *testing.T) {
	req := require.New(t)

	// Given options loaded from a broken environment
	hub := NewHub(&fakeStore{}, newStaticMembership(nil), Options{
		IdleTimeout: time.Nanosecond,
		SendBuffer:  -1,
	}, nil, testLogger())

	// Then neither the ping ticker nor the send queue can panic
	req.Positive(hub.opts.pingPeriod())
	req.NotPanics(func() {
		ticker := time.NewTicker(hub.opts.pingPeriod())
		ticker.Stop()
	})

	var c *Client
	req.NotPanics(func() {
		var err error
		c, err = newClient(hub, nil, "alice")
		req.NoError(err)
	})
	req.Equal(defaultSendBuffer, cap(c.send))

	zero := NewHub(&fakeStore{}, newStaticMembership(nil), Options{}, nil, testLogger())
	req.Equal(defaultIdleTimeout, zero.opts.IdleTimeout)
	req.Equal(int64(defaultMaxFrameBytes), zero.opts.MaxFrameBytes)
}
