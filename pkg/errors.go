// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// İki tür error var:
//   - Sentinel error'lar (ErrNotFound vb.): errors.Is ile karşılaştırılır.
//   - Tipli error'lar (AuthError, ProtocolError, StorageError, DeliveryError):
//     errors.As ile yakalanır, ek alan taşırlar. Unwrap ile sentinel'e bağlanırlar,
//     yani errors.Is(err, ErrUnauthorized) bir AuthError için de true döner.
package pkg

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyExists      = errors.New("already exists")
	ErrBadRequest         = errors.New("bad request")
	ErrInternal           = errors.New("internal error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// AuthReason, kimlik doğrulama hatasının alt türü.
type AuthReason string

const (
	AuthExpiredToken     AuthReason = "expired_token"
	AuthInvalidSignature AuthReason = "invalid_signature"
	AuthMalformed        AuthReason = "malformed"
	AuthMissing          AuthReason = "missing"
)

// AuthError, credential doğrulanamadığında döner. Bağlantıyı sonlandırır, retry yok.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + string(e.Reason)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnauthorized}
	}
	return []error{ErrUnauthorized, e.Err}
}

// ProtocolError, bozuk veya tanınmayan bir frame için döner.
// Gönderene error event'i yollanır, bağlantı açık kalır.
type ProtocolError struct {
	Type    string // frame'in type alanı (bilinmiyorsa boş)
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Type == "" {
		return "protocol: " + e.Message
	}
	return fmt.Sprintf("protocol: %s: %s", e.Type, e.Message)
}

func (e *ProtocolError) Unwrap() error { return ErrBadRequest }

// StorageError, append/markRead gibi kalıcı yazma işlemlerinin başarısızlığı.
// Fan-out yapılmaz, gönderene açık bir hata bildirimi gider.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DeliveryError, fan-out sırasında tek bir alıcıya gönderim hatası.
// Loglanır ve sayılır; gönderene asla iletilmez.
type DeliveryError struct {
	UserID       string
	ConnectionID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to user %s (conn %s): %v", e.UserID, e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
