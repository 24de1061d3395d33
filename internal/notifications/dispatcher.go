// Package notifications turns domain events into persisted notification
// records and fans them out to the push collaborator. Persistence comes
// first; push delivery is best-effort and never fails a dispatch.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/push"
	"github.com/vidclash/backend/internal/store"
)

// ErrUnknownType is returned for notification types without a template.
var ErrUnknownType = errors.New("unknown notification type")

const fallbackSenderName = "Someone"

type template struct {
	title   string
	message func(sender string, data map[string]any) string
}

var templates = map[string]template{
	models.NotificationFollowRequest: {
		title: "New follower",
		message: func(sender string, _ map[string]any) string {
			return fmt.Sprintf("%s started following you", sender)
		},
	},
	models.NotificationBattleRequest: {
		title: "Battle challenge",
		message: func(sender string, _ map[string]any) string {
			return fmt.Sprintf("%s challenged you to a battle", sender)
		},
	},
	models.NotificationBattleAccepted: {
		title: "Challenge accepted",
		message: func(sender string, _ map[string]any) string {
			return fmt.Sprintf("%s accepted your battle challenge", sender)
		},
	},
	models.NotificationBattleRejected: {
		title: "Challenge declined",
		message: func(sender string, _ map[string]any) string {
			return fmt.Sprintf("%s declined your battle challenge", sender)
		},
	},
	models.NotificationBattleDone: {
		title:   "Battle finished",
		message: resultMessage,
	},
	models.NotificationBattleExpired: {
		title:   "Battle expired",
		message: resultMessage,
	},
	models.NotificationVote: {
		title: "New vote",
		message: func(sender string, _ map[string]any) string {
			return fmt.Sprintf("%s voted for your video", sender)
		},
	},
}

func resultMessage(sender string, data map[string]any) string {
	if tie, _ := data["tie"].(bool); tie {
		return fmt.Sprintf("Your battle against %s ended in a tie", sender)
	}
	if won, _ := data["won"].(bool); won {
		return fmt.Sprintf("You won your battle against %s!", sender)
	}
	return fmt.Sprintf("Your battle against %s has ended. Better luck next time!", sender)
}

// Dispatcher persists notification records and attempts push delivery.
type Dispatcher struct {
	store  store.Store
	sender push.Sender
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher constructs the dispatcher. sender may be nil when push is not
// configured; notifications are then persisted only.
func NewDispatcher(st store.Store, sender push.Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: st, sender: sender, logger: logger, now: time.Now}
}

// WithNowFunc overrides the clock. Useful for tests.
func (d *Dispatcher) WithNowFunc(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Notify resolves the template for ntype, persists the notification, and then
// attempts push delivery. A push failure is logged and swallowed; a
// persistence failure propagates. Callers must invoke Notify at most once per
// logical domain event.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, senderID, ntype string, data map[string]any) (string, error) {
	tmpl, ok := templates[ntype]
	if !ok {
		return "", fmt.Errorf("notify %q: %w", ntype, ErrUnknownType)
	}
	if recipientID == "" {
		return "", errors.New("notify: recipient is required")
	}

	senderName := d.displayName(ctx, senderID)

	notification := models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    senderID,
		Type:        ntype,
		Title:       tmpl.title,
		Message:     tmpl.message(senderName, data),
		Data:        data,
		CreatedAt:   d.now().UTC(),
	}

	payload, err := store.Encode(notification)
	if err != nil {
		return "", fmt.Errorf("notify: %w", err)
	}
	if _, err := d.store.Create(ctx, store.CollectionNotifications, notification.ID, payload); err != nil {
		return "", fmt.Errorf("persist notification: %w", err)
	}

	d.deliver(ctx, notification)
	return notification.ID, nil
}

// MarkRead flips a notification to read. Read state is monotonic: re-marking
// a read notification is a no-op.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	if err := d.store.Update(ctx, store.CollectionNotifications, id, map[string]any{"read": true}); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (d *Dispatcher) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	q := store.Query{
		Filters: []store.Filter{{Field: "recipientId", Op: store.OpEqual, Value: userID}},
		OrderBy: &store.Order{Field: "createdAt", Desc: true},
		Limit:   limit,
	}
	docs, err := d.store.Query(ctx, store.CollectionNotifications, q)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications := make([]models.Notification, 0, len(docs))
	for _, doc := range docs {
		var n models.Notification
		if err := doc.Decode(&n); err != nil {
			d.logger.Warn("skip malformed notification", "notificationId", doc.ID, "error", err)
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (d *Dispatcher) displayName(ctx context.Context, userID string) string {
	if userID == "" {
		return fallbackSenderName
	}
	doc, err := d.store.Get(ctx, store.CollectionUsers, userID)
	if err != nil {
		d.logger.Debug("resolve sender name", "userId", userID, "error", err)
		return fallbackSenderName
	}
	var user models.User
	if err := doc.Decode(&user); err != nil || user.DisplayName == "" {
		return fallbackSenderName
	}
	return user.DisplayName
}

func (d *Dispatcher) deliver(ctx context.Context, n models.Notification) {
	if d.sender == nil {
		return
	}

	doc, err := d.store.Get(ctx, store.CollectionUsers, n.RecipientID)
	if err != nil {
		d.logger.Debug("push skipped: recipient lookup", "userId", n.RecipientID, "error", err)
		return
	}
	var recipient models.User
	if err := doc.Decode(&recipient); err != nil || recipient.DeviceToken == "" {
		return
	}

	msg := push.Message{
		DeviceToken: recipient.DeviceToken,
		Title:       n.Title,
		Body:        n.Message,
		Data:        n.Data,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		// The persisted record is the source of truth; push is a side channel.
		d.logger.Warn("push delivery failed", "notificationId", n.ID, "userId", n.RecipientID, "error", err)
	}
}
