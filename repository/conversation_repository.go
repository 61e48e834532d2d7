package repository

import (
	"context"

	"github.com/akinalp/parley/models"
)

// ConversationRepository, konuşma kayıtlarını yönetir.
type ConversationRepository interface {
	// Create, konuşmayı ve katılımcılarını tek transaction'da ekler.
	Create(ctx context.Context, conversation *models.Conversation, participants []string) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
}
