// Package ws, WebSocket bağlantı yönetimi ve gerçek zamanlı event dağıtımını sağlar.
//
// Mimari:
//   - Registry: kullanıcı → canlı bağlantı eşlemesi (sharded, son bağlanan kazanır)
//   - Dispatcher: konuşma üyelerine fan-out (konuşma başına sıralı)
//   - Presence: online/offline yayınları (kullanıcı başına tam bir kez)
//   - Hub: gelen frame'leri işleyip Message Log ve Dispatcher'a bağlar
//   - Client: tek bir WebSocket bağlantısı, read/write pump çifti
//
// Event akışı:
//  1. Client {type:"message"} gönderir → Hub.handleMessage
//  2. Message Log mesajı kalıcı yazar (ID ve zaman damgası server'da atanır)
//  3. Dispatcher aynı konuşma kilidi altında mesajı diğer üyelere iletir
//  4. Gönderene message_sent ack'i gider
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
)

// ────────────────────────────────────────────
// Frame tipleri
// ────────────────────────────────────────────

// Client → Server
const (
	TypeAuth    = "auth"    // Query/header yoksa ilk frame olarak token
	TypeMessage = "message" // Yeni mesaj (server → client yönünde de aynı isim)
	TypeTyping  = "typing"  // Yazıyor göstergesi (iki yönde de)
	TypeRead    = "read"    // Okundu işareti
	TypeLogout  = "logout"  // Bağlantıyı 1000 ile kapat
	TypePing    = "ping"    // Uygulama seviyesi heartbeat
)

// Server → Client
const (
	TypeMessageSent = "message_sent"
	TypeReadReceipt = "read_receipt"
	TypeStatus      = "status"
	TypeError       = "error"
	TypeReady       = "ready"
	TypePong        = "pong"
)

// Ack durumları
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Error event kodları. İstemci bunlara göre retry kararı verir.
const (
	CodeBadRequest         = "bad_request"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeStorageUnavailable = "storage_unavailable"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

// ────────────────────────────────────────────
// Inbound frame'ler
// ────────────────────────────────────────────

// Inbound, doğrulanmış bir client frame'i.
// Küme kapalıdır: sadece bu paketteki frame tipleri karşılar, Hub.handle
// bunları exhaustive bir type switch ile işler.
type Inbound interface {
	frameType() string
}

type AuthFrame struct {
	Token string `json:"token" validate:"required"`
}

type MessageFrame struct {
	ConversationID models.ID `json:"conversationId" validate:"required,max=64"`
	Content        string    `json:"content" validate:"required,max=4000"`
	ContentType    string    `json:"contentType" validate:"omitempty,oneof=text image file"`
	TempID         string    `json:"tempId" validate:"max=64"`
}

type TypingFrame struct {
	ConversationID models.ID `json:"conversationId" validate:"required,max=64"`
	IsTyping       bool      `json:"isTyping"`
}

type ReadFrame struct {
	MessageID models.ID `json:"messageId" validate:"required,max=64"`
}

type LogoutFrame struct{}

type PingFrame struct{}

func (*AuthFrame) frameType() string    { return TypeAuth }
func (*MessageFrame) frameType() string { return TypeMessage }
func (*TypingFrame) frameType() string  { return TypeTyping }
func (*ReadFrame) frameType() string    { return TypeRead }
func (*LogoutFrame) frameType() string  { return TypeLogout }
func (*PingFrame) frameType() string    { return TypePing }

var validate = newValidator()

// newValidator, hata mesajlarında Go alan adı yerine JSON adını kullanan validator.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeInbound, ham frame'i tipine göre çözer ve doğrular.
// Her hata *pkg.ProtocolError'dır; bağlantı açık kalır.
func DecodeInbound(raw []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &pkg.ProtocolError{Message: "invalid JSON"}
	}

	var frame Inbound
	switch envelope.Type {
	case TypeAuth:
		frame = &AuthFrame{}
	case TypeMessage:
		frame = &MessageFrame{}
	case TypeTyping:
		frame = &TypingFrame{}
	case TypeRead:
		frame = &ReadFrame{}
	case TypeLogout:
		frame = &LogoutFrame{}
	case TypePing:
		frame = &PingFrame{}
	case "":
		return nil, &pkg.ProtocolError{Message: "missing frame type"}
	default:
		return nil, &pkg.ProtocolError{Type: envelope.Type, Message: "unknown frame type"}
	}

	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, &pkg.ProtocolError{Type: envelope.Type, Message: "invalid payload"}
	}
	if err := validate.Struct(frame); err != nil {
		return nil, &pkg.ProtocolError{Type: envelope.Type, Message: validationMessage(err)}
	}
	return frame, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

// ────────────────────────────────────────────
// Outbound event'ler
// ────────────────────────────────────────────

// Event, client'a gönderilen her şey. JSON'a serialize edilip kuyruğa eklenir.
type Event interface {
	EventType() string
}

type MessageEvent struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

type MessageSentEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
	Status    string `json:"status"`
	TempID    string `json:"tempId,omitempty"`
}

type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type ReadReceiptEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

type StatusEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ErrorEvent, başarısız bir isteğe yanıt. RequestType hatanın hangi frame'e ait olduğunu söyler.
type ErrorEvent struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"requestType,omitempty"`
	TempID      string `json:"tempId,omitempty"`
}

// ReadyEvent, bağlantı Active olduğunda ilk gönderilen event.
type ReadyEvent struct {
	Type          string   `json:"type"`
	UserID        string   `json:"userId"`
	ConnectionID  string   `json:"connectionId"`
	OnlineUserIDs []string `json:"onlineUserIds"`
}

type PongEvent struct {
	Type string `json:"type"`
}

func (e MessageEvent) EventType() string     { return e.Type }
func (e MessageSentEvent) EventType() string { return e.Type }
func (e TypingEvent) EventType() string      { return e.Type }
func (e ReadReceiptEvent) EventType() string { return e.Type }
func (e StatusEvent) EventType() string      { return e.Type }
func (e ErrorEvent) EventType() string       { return e.Type }
func (e ReadyEvent) EventType() string       { return e.Type }
func (e PongEvent) EventType() string        { return e.Type }

func newMessageEvent(msg *models.Message) MessageEvent {
	return MessageEvent{Type: TypeMessage, Message: msg}
}

func newStatusEvent(userID string, online bool) StatusEvent {
	return StatusEvent{Type: TypeStatus, UserID: userID, IsOnline: online}
}

// newErrorEvent, domain hatasını client'a gösterilecek error event'ine çevirir.
// Storage ve internal hataların detayı client'a sızdırılmaz.
func newErrorEvent(err error, requestType, tempID string) ErrorEvent {
	ev := ErrorEvent{Type: TypeError, RequestType: requestType, TempID: tempID}

	var protoErr *pkg.ProtocolError
	switch {
	case errors.As(err, &protoErr):
		ev.Code, ev.Message = CodeBadRequest, "Invalid message format: "+protoErr.Message
	case errors.Is(err, pkg.ErrBadRequest):
		ev.Code, ev.Message = CodeBadRequest, "Invalid request"
	case errors.Is(err, pkg.ErrForbidden):
		ev.Code, ev.Message = CodeForbidden, "You are not a participant of this conversation"
	case errors.Is(err, pkg.ErrNotFound):
		ev.Code, ev.Message = CodeNotFound, "Message not found"
	case errors.Is(err, pkg.ErrRateLimited):
		ev.Code, ev.Message = CodeRateLimited, "You are sending too fast, slow down"
	case errors.Is(err, pkg.ErrStorageUnavailable):
		ev.Code, ev.Message = CodeStorageUnavailable, "Storage is temporarily unavailable, please retry"
	default:
		var storageErr *pkg.StorageError
		if errors.As(err, &storageErr) {
			ev.Code, ev.Message = CodeStorageUnavailable, "Failed to save, please retry"
		} else {
			ev.Code, ev.Message = CodeInternal, "Internal error"
		}
	}
	return ev
}
