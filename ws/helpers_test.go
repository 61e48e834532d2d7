package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// fakePeer, socket açmadan Registry/Dispatcher/Presence'ı test etmek için Peer.
type fakePeer struct {
	id     string
	userID string

	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  bool
	code    int
	reason  string
}

func newFakePeer(id, userID string) *fakePeer {
	return &fakePeer{id: id, userID: userID}
}

func (p *fakePeer) ID() string     { return p.id }
func (p *fakePeer) UserID() string { return p.userID }

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrConnectionClosed
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) Close(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed, p.code, p.reason = true, code, reason
}

func (p *fakePeer) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

func (p *fakePeer) closeState() (bool, int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.code, p.reason
}

// events, alınan frame'leri generic map olarak döner.
func (p *fakePeer) events(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]map[string]any, 0, len(p.frames))
	for _, f := range p.frames {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (p *fakePeer) eventsOfType(t *testing.T, eventType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ev := range p.events(t) {
		if ev["type"] == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// staticMembership, sabit konuşma → üye tablosu.
type staticMembership struct {
	mu      sync.Mutex
	members map[string][]string
}

func newStaticMembership(convs map[string][]string) *staticMembership {
	return &staticMembership{members: convs}
}

func (m *staticMembership) MembersOf(_ context.Context, conversationID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.members[conversationID]...), nil
}

func (m *staticMembership) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.members[conversationID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *staticMembership) Contacts(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, users := range m.members {
		member := false
		for _, u := range users {
			if u == userID {
				member = true
			}
		}
		if !member {
			continue
		}
		for _, u := range users {
			if u != userID && !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out, nil
}
