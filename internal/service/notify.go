package service

import (
	"context"
	"log"
)

// Notifier sends user-facing notifications. Callers treat failures as
// best-effort: a notification error never fails the triggering operation.
type Notifier interface {
	WelcomeSponsor(ctx context.Context, email, tier string) error
}

// LogNotifier is the default Notifier; it only writes a log line. A real
// email/push integration can be dropped in behind the same interface.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) WelcomeSponsor(_ context.Context, email, tier string) error {
	log.Printf("📣 Welcome notification queued for %s (%s sponsor)", email, tier)
	return nil
}
