package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/metrics"
	"github.com/akinalp/parley/pkg/tracing"
)

// MembersResolver, Dispatcher'ın konuşma üyelerini çözmek için kullandığı interface.
// Pratikte services.MembershipIndex karşılar.
type MembersResolver interface {
	MembersOf(ctx context.Context, conversationID string) ([]string, error)
}

// DispatchResult, tek bir fan-out'un özeti.
type DispatchResult struct {
	Recipients int // canlı bağlantısı bulunan alıcılar
	Delivered  int
	Failures   []*pkg.DeliveryError
}

// Dispatcher, event'leri konuşma üyelerinin canlı bağlantılarına iletir.
//
// Aynı konuşmaya yapılan dispatch'ler konuşma başına bir kilitle sıralanır;
// böylece her alıcı event'leri dispatch sırasıyla görür. Farklı konuşmalar
// paralel ilerler. Tek bir alıcıdaki hata (kapalı bağlantı, dolu buffer)
// diğer alıcıları etkilemez ve gönderene dönmez.
type Dispatcher struct {
	registry *Registry
	members  MembersResolver
	locks    *keyedMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher, constructor.
func NewDispatcher(registry *Registry, members MembersResolver, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		members:  members,
		locks:    newKeyedMutex(),
		metrics:  m,
		logger:   logger,
		tracer:   tracing.Tracer(),
	}
}

// Dispatch, event'i konuşmanın exclude dışındaki tüm canlı üyelerine iletir.
// Dönen error sadece üye çözümlemesi veya serialize hatasıdır;
// alıcı bazlı hatalar DispatchResult.Failures içindedir.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID string, event Event, exclude string) (DispatchResult, error) {
	unlock := d.locks.Lock(conversationID)
	defer unlock()

	return d.dispatchLocked(ctx, conversationID, event, exclude)
}

// Publish, produce'u konuşma kilidi altında çalıştırır ve ürettiği event'i
// kilidi bırakmadan yayar. Mesaj gönderiminde produce, Message Log'a append
// yapar; böylece canlı teslim sırası log sırasıyla aynı olur.
//
// produce hata dönerse fan-out yapılmaz ve hata aynen döner.
// Fan-out'un üye çözümlemesi başarısız olursa mesaj zaten kalıcıdır:
// hata loglanır, çevrimdışı teslim log üzerinden yapılır.
func (d *Dispatcher) Publish(
	ctx context.Context,
	conversationID, exclude string,
	produce func(ctx context.Context) (Event, error),
) (DispatchResult, error) {
	unlock := d.locks.Lock(conversationID)
	defer unlock()

	event, err := produce(ctx)
	if err != nil {
		return DispatchResult{}, err
	}

	res, err := d.dispatchLocked(ctx, conversationID, event, exclude)
	if err != nil {
		d.logger.Error("fan-out skipped after successful write",
			"conversation_id", conversationID,
			"event_type", event.EventType(),
			"error", err,
		)
	}
	return res, nil
}

func (d *Dispatcher) dispatchLocked(ctx context.Context, conversationID string, event Event, exclude string) (DispatchResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("event.type", event.EventType()),
	))
	defer span.End()

	start := time.Now()
	defer func() { d.metrics.ObserveDispatch(time.Since(start)) }()

	members, err := d.members.MembersOf(ctx, conversationID)
	if err != nil {
		tracing.RecordError(span, err)
		return DispatchResult{}, fmt.Errorf("failed to resolve members of %s: %w", conversationID, err)
	}

	frame, err := json.Marshal(event)
	if err != nil {
		tracing.RecordError(span, err)
		return DispatchResult{}, fmt.Errorf("failed to encode %s event: %w", event.EventType(), err)
	}

	res := d.deliver(frame, event.EventType(), lo.Without(members, exclude))
	span.SetAttributes(
		attribute.Int("dispatch.recipients", res.Recipients),
		attribute.Int("dispatch.delivered", res.Delivered),
	)
	return res, nil
}

// DispatchToUsers, event'i verilen kullanıcıların canlı bağlantılarına iletir.
// Kullanıcı listesi tekilleştirilir; her kullanıcı en fazla bir kopya alır.
func (d *Dispatcher) DispatchToUsers(ctx context.Context, users []string, event Event) DispatchResult {
	_, span := d.tracer.Start(ctx, "dispatcher.dispatch_to_users", trace.WithAttributes(
		attribute.String("event.type", event.EventType()),
		attribute.Int("dispatch.users", len(users)),
	))
	defer span.End()

	frame, err := json.Marshal(event)
	if err != nil {
		tracing.RecordError(span, err)
		d.logger.Error("failed to encode event", "event_type", event.EventType(), "error", err)
		return DispatchResult{}
	}
	return d.deliver(frame, event.EventType(), users)
}

// SendTo, event'i tek bir bağlantıya gönderir (ack, ready, error).
func (d *Dispatcher) SendTo(peer Peer, event Event) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.EventType(), err)
	}
	if err := peer.Send(frame); err != nil {
		return &pkg.DeliveryError{UserID: peer.UserID(), ConnectionID: peer.ID(), Err: err}
	}
	d.metrics.Delivered(event.EventType())
	return nil
}

func (d *Dispatcher) deliver(frame []byte, eventType string, users []string) DispatchResult {
	var res DispatchResult

	for _, userID := range lo.Uniq(users) {
		peer, ok := d.registry.Lookup(userID)
		if !ok {
			continue
		}
		res.Recipients++

		if err := peer.Send(frame); err != nil {
			res.Failures = append(res.Failures, &pkg.DeliveryError{
				UserID:       userID,
				ConnectionID: peer.ID(),
				Err:          err,
			})
			d.metrics.DeliveryFailed(failureReason(err))
			d.logger.Warn("delivery failed",
				"user_id", userID,
				"connection_id", peer.ID(),
				"event_type", eventType,
				"error", err,
			)

			// Yavaş tüketici diğerlerini bekletmesin; bağlantı kapanır, istemci yeniden bağlanıp log'dan toparlar
			if errors.Is(err, ErrSendBufferFull) {
				peer.Close(CloseTryAgain, reasonSlowConsume)
			}
			continue
		}

		res.Delivered++
		d.metrics.Delivered(eventType)
	}

	return res
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSendBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	default:
		return "other"
	}
}
