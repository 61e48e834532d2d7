package repository

import (
	"context"

	"github.com/akinalp/parley/models"
)

// MembershipRepository, konuşma üyeliklerini okur.
// Üyelik değişikliği bu çekirdeğin işi değildir; sadece commit edilmiş satırlar okunur.
type MembershipRepository interface {
	ListMembers(ctx context.Context, conversationID string) ([]string, error)
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
	Get(ctx context.Context, conversationID, userID string) (*models.Membership, error)
}
