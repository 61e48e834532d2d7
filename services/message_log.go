package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/tracing"
	"github.com/akinalp/parley/repository"
)

// MemberChecker, MessageLog'un yetki kontrolü için ihtiyaç duyduğu tek metod.
type MemberChecker interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// MessageLog, kalıcı ve sıralı mesaj log'u; gerçeğin kaynağıdır.
//
// Append ve MarkRead'in storage kaynaklı hataları *pkg.StorageError olarak döner.
// Yetki ve bulunamama hataları sentinel'lerle (ErrForbidden, ErrNotFound) döner.
//
// Bilinen boşluk: yazma ve fan-out tek transaction değildir. Append commit edildikten
// sonra, fan-out'tan önce süreç çökerse mesaj log'da kalır ama canlı iletilmez;
// istemciler log'dan yeniden çekerek uzlaşır.
type MessageLog struct {
	repo    repository.MessageRepository
	members MemberChecker
	health  *StorageHealth
	tracer  trace.Tracer
	logger  *slog.Logger

	clockMu sync.Mutex
	last    time.Time
	now     func() time.Time
}

// NewMessageLog, constructor.
func NewMessageLog(repo repository.MessageRepository, members MemberChecker, health *StorageHealth, logger *slog.Logger) *MessageLog {
	return &MessageLog{
		repo:    repo,
		members: members,
		health:  health,
		tracer:  tracing.Tracer(),
		logger:  logger.With("component", "message_log"),
		now:     time.Now,
	}
}

// Append, mesajı kalıcı olarak yazar ve kanonik kaydı döner.
// ID (UUIDv7) ve CreatedAt her zaman server tarafında atanır.
func (l *MessageLog) Append(ctx context.Context, conversationID, senderID, content, contentType string) (msg *models.Message, err error) {
	ctx, span := l.tracer.Start(ctx, "message_log.append", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("sender.id", senderID),
	))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", pkg.ErrBadRequest)
	}
	if contentType == "" {
		contentType = models.ContentTypeText
	}

	if err := l.authorize(ctx, conversationID, senderID); err != nil {
		return nil, err
	}
	if err := l.health.Allow(ctx); err != nil {
		return nil, &pkg.StorageError{Op: "append", Err: err}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, &pkg.StorageError{Op: "append", Err: fmt.Errorf("generate id: %w", err)}
	}

	msg = &models.Message{
		ID:             id.String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    contentType,
		CreatedAt:      l.timestamp(),
	}

	err = l.repo.Append(ctx, msg)
	l.health.Observe("append", err)
	if err != nil {
		return nil, &pkg.StorageError{Op: "append", Err: err}
	}

	span.SetAttributes(attribute.String("message.id", msg.ID))
	return msg, nil
}

// MarkRead, (messageID, userID) için okundu kaydı ekler. Tekrar çağrı no-op'tur
// ve Inserted=false döner.
func (l *MessageLog) MarkRead(ctx context.Context, messageID, userID string) (res *models.ReadResult, err error) {
	ctx, span := l.tracer.Start(ctx, "message_log.mark_read", trace.WithAttributes(
		attribute.String("message.id", messageID),
		attribute.String("reader.id", userID),
	))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if err := l.health.Allow(ctx); err != nil {
		return nil, &pkg.StorageError{Op: "mark_read", Err: err}
	}

	msg, err := l.repo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, err
		}
		l.health.Observe("mark_read", err)
		return nil, &pkg.StorageError{Op: "mark_read", Err: err}
	}

	if err := l.authorize(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	read := models.MessageRead{MessageID: messageID, UserID: userID, ReadAt: l.now().UTC()}
	inserted, err := l.repo.MarkRead(ctx, msg.ConversationID, &read)
	l.health.Observe("mark_read", err)
	if err != nil {
		return nil, &pkg.StorageError{Op: "mark_read", Err: err}
	}

	return &models.ReadResult{Message: msg, Read: read, Inserted: inserted}, nil
}

// GetByID, tek bir mesajı döner.
func (l *MessageLog) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := l.repo.GetByID(ctx, messageID)
	if err != nil && !errors.Is(err, pkg.ErrNotFound) {
		return nil, &pkg.StorageError{Op: "get", Err: err}
	}
	return msg, err
}

// History, konuşmanın mesajlarını eskiden yeniye döner.
// beforeID boşsa en son limit mesaj gelir.
func (l *MessageLog) History(ctx context.Context, conversationID, beforeID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := l.repo.ListByConversation(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, &pkg.StorageError{Op: "history", Err: err}
	}
	return msgs, nil
}

func (l *MessageLog) authorize(ctx context.Context, conversationID, userID string) error {
	ok, err := l.members.IsMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a participant of this conversation", pkg.ErrForbidden)
	}
	return nil
}

// timestamp, süreç içinde kesin artan bir UTC zaman döner.
// Saat geri giderse veya aynı nanosaniyeye denk gelinirse son değer 1ns ilerletilir.
func (l *MessageLog) timestamp() time.Time {
	l.clockMu.Lock()
	defer l.clockMu.Unlock()

	now := l.now().UTC()
	if !now.After(l.last) {
		now = l.last.Add(time.Nanosecond)
	}
	l.last = now
	return now
}
