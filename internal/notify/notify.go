// Package notify publishes domain events such as "a diagram was shared with
// you". Delivery (e-mail, chat, in-app) is someone else's job; this package
// only hands the event off.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event types.
const (
	EventDiagramShared = "diagram.shared"
	EventShareRevoked  = "diagram.share_revoked"
)

// ShareEvent is published when a share is created or revoked.
type ShareEvent struct {
	Type            string     `json:"event_type"`
	DiagramID       string     `json:"diagram"`
	DiagramTitle    string     `json:"title"`
	SharedWith      string     `json:"shared_with"`
	SharedBy        string     `json:"shared_by"`
	PermissionLevel string     `json:"permission_level"`
	ShareToken      string     `json:"share_token,omitempty"`
	ExpiresAt       *time.Time `json:"expires_on,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Notifier delivers share events. Callers treat errors as non-fatal.
type Notifier interface {
	NotifyShare(ctx context.Context, event *ShareEvent) error
}

// LogNotifier writes events to the application log. It is used when no
// message broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyShare(_ context.Context, event *ShareEvent) error {
	n.logger.Info("share notification",
		slog.String("event", event.Type),
		slog.String("diagram", event.DiagramID),
		slog.String("sharedWith", event.SharedWith),
		slog.String("permission", event.PermissionLevel),
	)
	return nil
}
