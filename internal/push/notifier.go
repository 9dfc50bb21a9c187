// Package push dispatches notifications to registered device tokens for
// participants with no live connection. Dispatch is strictly best-effort:
// a failed push never affects message delivery.
package push

import (
	"context"

	"github.com/rs/zerolog/log"
)

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

type Notifier interface {
	// Notify sends the notification to every token. Returns per-token
	// success and failure counts; err covers transport-level failure only.
	Notify(ctx context.Context, tokens []string, n Notification) (success, failure int, err error)
}

// LogNotifier logs instead of delivering. Default wiring until a real
// provider (FCM, APNs) is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (l *LogNotifier) Notify(ctx context.Context, tokens []string, n Notification) (int, int, error) {
	if len(tokens) == 0 {
		return 0, 0, nil
	}
	log.Info().
		Int("tokenCount", len(tokens)).
		Str("title", n.Title).
		Msg("push notification dispatched (log only)")
	return len(tokens), 0, nil
}
