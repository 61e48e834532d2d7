package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/repository"
)

// ConversationService, konuşma oluşturur. Üyelik yönetimi HTTP CRUD katmanının işidir;
// burada yalnızca operatör/CLI yolu bulunur.
type ConversationService struct {
	repo  repository.ConversationRepository
	index *MembershipIndex
	now   func() time.Time
}

// NewConversationService, constructor. index nil olabilir.
func NewConversationService(repo repository.ConversationRepository, index *MembershipIndex) *ConversationService {
	return &ConversationService{repo: repo, index: index, now: time.Now}
}

// Create, konuşmayı katılımcılarıyla birlikte oluşturur.
// İki katılımcı direct, daha fazlası group olur.
func (s *ConversationService) Create(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate conversation id: %w", err)
	}

	now := s.now().UTC()
	conv := &models.Conversation{
		ID:        id.String(),
		Kind:      req.Kind(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Title != "" {
		conv.Title = &req.Title
	}

	if err := s.repo.Create(ctx, conv, req.Participants); err != nil {
		return nil, err
	}

	if s.index != nil {
		s.index.Invalidate(conv.ID, req.Participants...)
	}
	return conv, nil
}

// Get, konuşmayı ID ile döner.
func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return s.repo.GetByID(ctx, id)
}
