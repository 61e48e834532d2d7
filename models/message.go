package models

import "time"

// Content type'lar. Serbest metin dışında istemci tarafı eklerin referansları için ayrılmıştır.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
	ContentTypeFile  = "file"
)

// MaxContentLength, tek bir mesajın rune cinsinden üst sınırı.
const MaxContentLength = 4000

// Message, "messages" tablosunun Go karşılığı.
// Oluşturulduktan sonra değişmez; ID (UUIDv7) ve CreatedAt server tarafında atanır.
// Konuşma içi sıralama anahtarı (CreatedAt, ID).
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	ContentType    string    `json:"contentType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Before, m'nin konuşma sıralamasında o'dan önce gelip gelmediğini söyler.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// MessageRead, (MessageID, UserID) çifti için tek bir okundu kaydı.
type MessageRead struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// ReadResult, MarkRead çağrısının sonucu.
// Inserted false ise kayıt zaten vardı; read_receipt yayınlanmaz.
type ReadResult struct {
	Message  *Message
	Read     MessageRead
	Inserted bool
}
