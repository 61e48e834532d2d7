package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/cache"
	"github.com/akinalp/parley/repository"
)

// MembershipIndex, konuşma → üyeler ve kullanıcı → konuşmalar eşlemelerini sunar.
//
// Her okuma storage'dan yapılır: dispatch ve yetki kontrolü, o ana kadar commit
// edilmiş üyeliği görür. Aynı key için eşzamanlı okumalar singleflight ile tek
// sorguya indirilir; yalnızca devam eden bir okumayla yarışan değişiklik kaçabilir.
//
// Son başarılı okuma saklanır ve sadece storage hatasında sunulur (degraded read).
// Reddedilen IsMember sonuçları negativeTTL boyunca hatırlanır; üye olmayan birinin
// frame yağmuru her frame için sorgu üretmez.
type MembershipIndex struct {
	repo   repository.MembershipRepository
	health *StorageHealth
	logger *slog.Logger

	members       *cache.TTLCache[string, []string]
	conversations *cache.TTLCache[string, []string]
	denied        *cache.TTLCache[string, struct{}]
	negativeTTL   time.Duration
	group         singleflight.Group
}

// NewMembershipIndex, constructor. health nil olabilir.
// negativeTTL sıfırsa reddedilen sonuçlar hatırlanmaz.
func NewMembershipIndex(repo repository.MembershipRepository, health *StorageHealth, negativeTTL, staleGrace time.Duration, logger *slog.Logger) *MembershipIndex {
	cleanup := max(negativeTTL, time.Minute)
	return &MembershipIndex{
		repo:          repo,
		health:        health,
		logger:        logger.With("component", "membership"),
		members:       cache.New[string, []string](0, cleanup, cache.WithStaleGrace(staleGrace)),
		conversations: cache.New[string, []string](0, cleanup, cache.WithStaleGrace(staleGrace)),
		denied:        cache.New[string, struct{}](negativeTTL, cleanup),
		negativeTTL:   negativeTTL,
	}
}

// MembersOf, konuşmanın tekilleştirilmiş üye listesini döner.
// Dönen slice çağırana aittir.
func (idx *MembershipIndex) MembersOf(ctx context.Context, conversationID string) ([]string, error) {
	return idx.load(ctx, idx.members, "members:", conversationID, idx.repo.ListMembers)
}

// ConversationsOf, kullanıcının üyesi olduğu konuşmaları döner.
func (idx *MembershipIndex) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	return idx.load(ctx, idx.conversations, "conversations:", userID, idx.repo.ListConversationIDs)
}

// IsMember, kullanıcının konuşmanın üyesi olup olmadığını söyler.
func (idx *MembershipIndex) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	key := deniedKey(conversationID, userID)
	if idx.negativeTTL > 0 {
		if _, ok := idx.denied.Get(key); ok {
			return false, nil
		}
	}

	members, err := idx.MembersOf(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if slices.Contains(members, userID) {
		return true, nil
	}

	if idx.negativeTTL > 0 {
		idx.denied.Set(key, struct{}{})
	}
	return false, nil
}

// Contacts, kullanıcıyla en az bir konuşmayı paylaşan diğer kullanıcıları döner.
// Presence olaylarının hedef kümesidir.
func (idx *MembershipIndex) Contacts(ctx context.Context, userID string) ([]string, error) {
	convs, err := idx.ConversationsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	var all []string
	for _, convID := range convs {
		members, err := idx.MembersOf(ctx, convID)
		if err != nil {
			return nil, err
		}
		all = append(all, members...)
	}
	return lo.Without(lo.Uniq(all), userID), nil
}

// Invalidate, konuşmaya eklenen kullanıcılar için hatırlanan red sonuçlarını düşürür.
// Kullanıcı verilmezse konuşmanın tüm red sonuçları düşer.
func (idx *MembershipIndex) Invalidate(conversationID string, addedUsers ...string) {
	if len(addedUsers) == 0 {
		prefix := deniedKey(conversationID, "")
		idx.denied.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
		return
	}
	for _, u := range addedUsers {
		idx.denied.Delete(deniedKey(conversationID, u))
	}
}

// Close, cache temizleme goroutine'lerini durdurur.
func (idx *MembershipIndex) Close() {
	idx.members.Close()
	idx.conversations.Close()
	idx.denied.Close()
}

func (idx *MembershipIndex) load(
	ctx context.Context,
	snapshots *cache.TTLCache[string, []string],
	prefix, key string,
	loader func(context.Context, string) ([]string, error),
) ([]string, error) {
	flightKey := prefix + key

	v, err, _ := idx.group.Do(flightKey, func() (any, error) {
		// İlk çağıranın iptali bekleyen diğer çağıranları düşürmesin.
		rows, err := loader(context.WithoutCancel(ctx), key)
		idx.health.Observe("membership", err)
		if err != nil {
			return nil, err
		}
		uniq := lo.Uniq(rows)
		snapshots.Set(key, uniq)
		return uniq, nil
	})
	if err != nil {
		if stale, ok := snapshots.GetStale(key); ok {
			idx.logger.Warn("serving stale membership", "key", flightKey, "error", err)
			return slices.Clone(stale), nil
		}
		return nil, &pkg.StorageError{Op: "membership", Err: fmt.Errorf("load %s: %w", flightKey, err)}
	}
	return slices.Clone(v.([]string)), nil
}

func deniedKey(conversationID, userID string) string {
	return conversationID + "\x00" + userID
}
