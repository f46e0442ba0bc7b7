package notify

import (
	"context"
	"log/slog"
)

// LeadNotification is the message scheduled when a lead is first captured
// for an audit. Delivery is an external collaborator's job; this package
// only queues and hands off.
type LeadNotification struct {
	LeadID       string `json:"lead_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	BusinessName string `json:"business_name,omitempty"`
	URL          string `json:"url"`
	OverallGrade string `json:"overall_grade,omitempty"`
}

// Notifier delivers a lead notification.
type Notifier interface {
	NotifyLead(ctx context.Context, n LeadNotification) error
}

// LogNotifier records notifications in the log; the default when no delivery
// backend is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyLead(_ context.Context, n LeadNotification) error {
	slog.Info("lead captured",
		"lead_id", n.LeadID,
		"email", n.Email,
		"url", n.URL,
		"overall_grade", n.OverallGrade,
	)
	return nil
}

// Dispatcher decouples lead capture from delivery: Schedule never blocks the
// request, a single goroutine drains the queue.
type Dispatcher struct {
	notifier Notifier
	queue    chan LeadNotification
}

func NewDispatcher(notifier Notifier) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan LeadNotification, 64),
	}
}

// Schedule enqueues a notification. If the queue is full the notification is
// dropped with a log entry; lead capture must never fail on delivery.
func (d *Dispatcher) Schedule(n LeadNotification) {
	select {
	case d.queue <- n:
	default:
		slog.Warn("notification queue full, dropping", "lead_id", n.LeadID)
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			if err := d.notifier.NotifyLead(ctx, n); err != nil {
				slog.Error("lead notification failed", "lead_id", n.LeadID, "error", err)
			}
		}
	}
}
