package services

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/parley/database"
	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/repository"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "parley.db"), database.Migrations(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// stack, tek bir SQLite üzerinde kurulmuş servis grubu.
type stack struct {
	db      *database.DB
	health  *StorageHealth
	index   *MembershipIndex
	log     *MessageLog
	convs   *ConversationService
	members repository.MembershipRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newTestDB(t)
	health := NewStorageHealth(db.Conn, 3, time.Second, nil, testLogger())
	members := repository.NewSQLiteMembershipRepo(db.Conn)
	index := NewMembershipIndex(members, health, time.Minute, time.Hour, testLogger())
	t.Cleanup(index.Close)

	return &stack{
		db:      db,
		health:  health,
		index:   index,
		log:     NewMessageLog(repository.NewSQLiteMessageRepo(db.Conn), index, health, testLogger()),
		convs:   NewConversationService(repository.NewSQLiteConversationRepo(db.Conn), index),
		members: members,
	}
}

func (s *stack) conversation(t *testing.T, users ...string) string {
	t.Helper()
	conv, err := s.convs.Create(context.Background(), models.CreateConversationRequest{Participants: users})
	require.NoError(t, err)
	return conv.ID
}

// fakeMembershipRepo, çağrı sayısını tutan ve hata enjekte edilebilen repo.
type fakeMembershipRepo struct {
	mu      sync.Mutex
	members map[string][]string
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{members: map[string][]string{}}
}

func (f *fakeMembershipRepo) set(conv string, users ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[conv] = users
}

func (f *fakeMembershipRepo) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMembershipRepo) ListMembers(ctx context.Context, conversationID string) ([]string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.members[conversationID]...), nil
}

func (f *fakeMembershipRepo) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for conv, users := range f.members {
		for _, u := range users {
			if u == userID {
				out = append(out, conv)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMembershipRepo) Get(ctx context.Context, conversationID, userID string) (*models.Membership, error) {
	return nil, nil
}

type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) PingContext(context.Context) error {
	p.calls++
	return p.err
}
