package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ramurama/populardoctor-webapi/internal/events"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// Outbox event types carrying a Notification payload.
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// Notification is a user-facing message keyed by user identifier.
type Notification struct {
	UserID    string `json:"user_id"`
	BookingID int64  `json:"booking_id,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier. All are attempted; the
// first error is returned.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OutboxHandler turns outbox entries into notifications.
type OutboxHandler struct {
	notifier Notifier
	logger   *logging.Logger
}

func NewOutboxHandler(notifier Notifier, logger *logging.Logger) *OutboxHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboxHandler{notifier: notifier, logger: logger}
}

func (h *OutboxHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case EventBookingConfirmed, EventBookingCancelled:
	default:
		h.logger.Debug("notify: ignoring outbox event", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
	var n Notification
	if err := json.Unmarshal(entry.Payload, &n); err != nil {
		// A malformed payload will never decode; report it delivered.
		h.logger.Error("notify: malformed notification payload", "error", err, "event_id", entry.ID)
		return nil
	}
	if n.UserID == "" {
		return nil
	}
	if h.notifier == nil {
		return errors.New("notify: no notifier configured")
	}
	if err := h.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify: deliver %s: %w", entry.Type, err)
	}
	return nil
}

var _ events.DeliveryHandler = (*OutboxHandler)(nil)
