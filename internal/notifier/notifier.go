// Package notifier delivers user-facing outcome messages. Delivery is
// best-effort: failures are logged, never propagated.
package notifier

import (
	"context"
	"log/slog"
	"sync"
)

// Sender is anything that can push a message to a Telegram user
type Sender interface {
	SendNotification(ctx context.Context, userID int64, text string) error
}

// Notifier fans user notifications out through the bot
type Notifier struct {
	log *slog.Logger

	mu     sync.RWMutex
	sender Sender
}

// New creates a Notifier. The sender is bound later, once the bot exists;
// the payment monitor only holds the Notifier.
func New(log *slog.Logger) *Notifier {
	return &Notifier{log: log}
}

// Bind attaches the message transport
func (n *Notifier) Bind(sender Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sender = sender
}

// Notify sends a message to a user, best-effort
func (n *Notifier) Notify(ctx context.Context, userID int64, text string) {
	n.mu.RLock()
	sender := n.sender
	n.mu.RUnlock()

	if sender == nil {
		n.log.Warn("notifier not bound, dropping message", "user_id", userID)
		return
	}

	if err := sender.SendNotification(ctx, userID, text); err != nil {
		n.log.Error("send notification", "error", err, "user_id", userID)
	}
}
