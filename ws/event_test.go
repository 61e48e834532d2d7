package ws

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/parley/pkg"
)

func TestDecodeInbound(t *testing.T) {
	t.Run("message with numeric conversation id", func(t *testing.T) {
		req := require.New(t)

		frame, err := DecodeInbound([]byte(`{"type":"message","conversationId":42,"content":"hi","tempId":"t1"}`))

		req.NoError(err)
		msg, ok := frame.(*MessageFrame)
		req.True(ok)
		req.Equal("42", msg.ConversationID.String())
		req.Equal("t1", msg.TempID)
	})

	t.Run("each known type decodes to its frame", func(t *testing.T) {
		req := require.New(t)
		cases := map[string]Inbound{
			`{"type":"auth","token":"abc"}`:                       &AuthFrame{},
			`{"type":"typing","conversationId":"c1","isTyping":true}`: &TypingFrame{},
			`{"type":"read","messageId":"m1"}`:                     &ReadFrame{},
			`{"type":"logout"}`:                                    &LogoutFrame{},
			`{"type":"ping"}`:                                      &PingFrame{},
		}
		for raw, want := range cases {
			frame, err := DecodeInbound([]byte(raw))
			req.NoError(err, raw)
			req.IsType(want, frame, raw)
		}
	})

	rejected := []struct {
		name    string
		raw     string
		message string
	}{
		{"not json", `hello`, "invalid JSON"},
		{"missing type", `{"content":"hi"}`, "missing frame type"},
		{"unknown type", `{"type":"voice_join"}`, "unknown frame type"},
		{"wrong field type", `{"type":"typing","conversationId":"c1","isTyping":"yes"}`, "invalid payload"},
		{"missing conversation", `{"type":"message","content":"hi"}`, "conversationId is required"},
		{"empty content", `{"type":"message","conversationId":"c1","content":""}`, "content is required"},
		{"bad content type", `{"type":"message","conversationId":"c1","content":"hi","contentType":"video"}`, "contentType must be one of"},
		{"missing message id", `{"type":"read"}`, "messageId is required"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)

			_, err := DecodeInbound([]byte(tc.raw))

			var protoErr *pkg.ProtocolError
			req.ErrorAs(err, &protoErr)
			req.Contains(protoErr.Message, tc.message)
			req.ErrorIs(err, pkg.ErrBadRequest)
		})
	}

	t.Run("content over the limit", func(t *testing.T) {
		raw := fmt.Sprintf(`{"type":"message","conversationId":"c1","content":%q}`, strings.Repeat("ş", 4001))

		_, err := DecodeInbound([]byte(raw))

		require.ErrorContains(t, err, "content exceeds 4000 characters")
	})
}

func TestNewErrorEvent(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{&pkg.ProtocolError{Type: TypeMessage, Message: "content is required"}, CodeBadRequest},
		{fmt.Errorf("%w: content is empty", pkg.ErrBadRequest), CodeBadRequest},
		{fmt.Errorf("%w: not a participant", pkg.ErrForbidden), CodeForbidden},
		{fmt.Errorf("%w: message", pkg.ErrNotFound), CodeNotFound},
		{pkg.ErrStorageUnavailable, CodeStorageUnavailable},
		{pkg.ErrRateLimited, CodeRateLimited},
		{&pkg.StorageError{Op: "append", Err: errors.New("disk I/O error")}, CodeStorageUnavailable},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		ev := newErrorEvent(tc.err, TypeMessage, "t1")

		require.Equal(t, tc.code, ev.Code, tc.err.Error())
		require.Equal(t, "t1", ev.TempID)
		require.NotContains(t, ev.Message, "disk")
	}
}
