// Package repository, veritabanı erişim katmanı.
// Her concern için bir interface ve onun SQLite implementasyonu (sqlite_*.go) bulunur.
// Constructor'lar interface döner; service katmanı concrete tiplere bağımlı olmaz.
package repository

import (
	"context"

	"github.com/akinalp/parley/models"
)

// MessageRepository, mesaj log'u için interface.
//
// ListByConversation cursor-based'dir: beforeID boşsa en yenilerden başlar,
// değilse o mesajdan önceki mesajları döner. Sonuç her zaman eskiden yeniye sıralıdır.
type MessageRepository interface {
	// Append, mesajı ekler ve konuşmanın updated_at'ini tek transaction'da günceller.
	Append(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID, beforeID string, limit int) ([]models.Message, error)
	// MarkRead, okundu kaydını idempotent olarak ekler. Yeni satır eklendiyse true döner.
	MarkRead(ctx context.Context, conversationID string, read *models.MessageRead) (bool, error)
}
