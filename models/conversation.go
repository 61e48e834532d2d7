package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// Konuşma türleri. İki katılımcı direct, fazlası group.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation, "conversations" tablosunun Go karşılığı.
type Conversation struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title,omitempty"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Membership, bir kullanıcının bir konuşmadaki üyeliği.
// LastReadAt yalnızca okuma yolunda güncellenir ve geri gitmez.
type Membership struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
}

// CreateConversationRequest, yeni konuşma oluşturma isteği.
type CreateConversationRequest struct {
	Title        string
	Participants []string
}

// Validate, isteği normalize eder ve doğrular.
// Katılımcılar tekilleştirilir; en az iki farklı kullanıcı gerekir.
func (r *CreateConversationRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Participants = lo.Uniq(lo.Compact(lo.Map(r.Participants, func(p string, _ int) string {
		return strings.TrimSpace(p)
	})))

	if len(r.Participants) < 2 {
		return fmt.Errorf("a conversation needs at least two distinct participants")
	}
	if utf8.RuneCountInString(r.Title) > 100 {
		return fmt.Errorf("title must be at most 100 characters")
	}
	return nil
}

// Kind, katılımcı sayısına göre konuşma türünü döner.
func (r *CreateConversationRequest) Kind() string {
	if len(r.Participants) > 2 {
		return ConversationGroup
	}
	return ConversationDirect
}
