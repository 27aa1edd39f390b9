package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"companion-relay/internal/domain"
	"companion-relay/internal/metrics"
)

const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

type EntitlementReader interface {
	IsPaid(ctx context.Context, userID string) (bool, error)
}

type Dispatcher interface {
	Push(ctx context.Context, userID string, reply domain.Reply) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// BatchResult summarizes one webhook batch. It is informational only; the
// webhook is acknowledged the same way regardless.
type BatchResult struct {
	Processed int
	Skipped   int
	Failed    int
}

// RelayService runs the entitlement check, reply composition and dispatch
// for every text message in a webhook batch.
type RelayService struct {
	entitlements EntitlementReader
	composer     *Composer
	dispatcher   Dispatcher
	log          *slog.Logger
	metrics      *metrics.Metrics
}

func NewRelayService(e EntitlementReader, c *Composer, d Dispatcher, log *slog.Logger, m *metrics.Metrics) (*RelayService, error) {
	if e == nil {
		return nil, errors.New("usecase: entitlement reader must not be nil")
	}
	if c == nil {
		return nil, errors.New("usecase: composer must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &RelayService{
		entitlements: e,
		composer:     c,
		dispatcher:   d,
		log:          log,
		metrics:      m,
	}, nil
}

// HandleBatch processes events one at a time in order. A failure in one event
// never stops the rest of the batch.
func (s *RelayService) HandleBatch(ctx context.Context, events []domain.InboundEvent) BatchResult {
	s.metrics.Batch(len(events))

	var res BatchResult
	for i, ev := range events {
		if !ev.IsTextMessage() {
			s.log.DebugContext(ctx, "skipping non-text event", "index", i, "type", ev.Type)
			s.metrics.Event(outcomeSkipped)
			res.Skipped++
			continue
		}
		if strings.TrimSpace(ev.Source.UserID) == "" {
			s.log.WarnContext(ctx, "skipping text event without user id", "index", i, "source_type", ev.Source.Type)
			s.metrics.Event(outcomeSkipped)
			res.Skipped++
			continue
		}
		if ev.IsRedelivery() {
			s.log.InfoContext(ctx, "processing redelivered event", "webhook_event_id", ev.WebhookEventID)
		}

		if err := s.HandleEvent(ctx, ev.Source.UserID, ev.Message.Text); err != nil {
			s.log.ErrorContext(ctx, "event failed", "index", i, "user_id", ev.Source.UserID, "err", err)
			s.metrics.Event(outcomeFailed)
			res.Failed++
			continue
		}
		s.metrics.Event(outcomeProcessed)
		res.Processed++
	}
	return res
}

// HandleEvent replies to a single text message. Entitlement and completion
// failures degrade to the upsell and apology replies; only a dispatch
// failure or a panic is returned.
func (s *RelayService) HandleEvent(ctx context.Context, userID, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := newError(ErrorPanic, "recovered", fmt.Errorf("%v", r))
			s.recordFailure(panicErr)
			err = panicErr
		}
	}()

	log := s.log.With("user_id", userID)
	log.DebugContext(ctx, "message received", "text", text)

	paid := s.isPaid(ctx, log, userID)

	reply, rule, composeErr := s.composer.Compose(ctx, paid, text)
	if composeErr != nil {
		s.recordFailure(composeErr)
		attrs := []any{"err", composeErr}
		if status, ok := upstreamStatusCode(composeErr); ok {
			attrs = append(attrs, "status", status)
		}
		log.ErrorContext(ctx, "completion failed, sending apology", attrs...)
	}
	s.metrics.Reply(string(rule))

	if err := s.dispatcher.Push(ctx, userID, reply); err != nil {
		dispatchErr := newError(ErrorDispatch, "line_push_error", err)
		s.recordFailure(dispatchErr)
		return dispatchErr
	}
	log.InfoContext(ctx, "reply sent", "rule", rule, "kind", reply.Kind())
	return nil
}

// isPaid fails closed: any read error counts as not entitled.
func (s *RelayService) isPaid(ctx context.Context, log *slog.Logger, userID string) bool {
	paid, err := s.entitlements.IsPaid(ctx, userID)
	if err != nil {
		storeErr := newError(ErrorStoreRead, "dynamodb_get_error", err)
		s.recordFailure(storeErr)
		log.ErrorContext(ctx, "entitlement lookup failed, treating as unpaid", "err", storeErr)
		return false
	}
	return paid
}

func (s *RelayService) recordFailure(err error) {
	if stage, ok := StageOf(err); ok {
		s.metrics.Failure(stage)
	}
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
