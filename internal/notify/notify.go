// Package notify delivers sync results to configured channels.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/model"
)

// Channel prefixes understood by FromChannels.
const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook:"
)

// Event is one finished sync.
type Event struct {
	OperationID string           `json:"operation_id"`
	Branch      string           `json:"branch"`
	Status      model.SyncStatus `json:"status"`
	CommitHash  string           `json:"commit_hash,omitempty"`
	Conflicts   []string         `json:"conflicts,omitempty"`
	Error       string           `json:"error,omitempty"`
	Duration    time.Duration    `json:"duration_ns"`
	Timestamp   time.Time        `json:"timestamp"`
}

// EventFromOperation summarises op.
func EventFromOperation(op *model.SyncOperation, now time.Time) Event {
	ev := Event{
		OperationID: op.ID,
		Branch:      op.WorktreeBranch,
		Status:      op.Status,
		Error:       op.Error,
		Duration:    op.Duration(),
		Timestamp:   now,
	}
	if op.MergeOutcome != nil {
		ev.CommitHash = op.MergeOutcome.CommitHash
	}
	if op.ConflictInfo != nil {
		ev.Conflicts = append([]string(nil), op.ConflictInfo.ConflictedFiles...)
	}
	return ev
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier; nil uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs ev at a level matching its status.
func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	switch ev.Status {
	case model.StatusConflict:
		level = slog.LevelWarn
	case model.StatusFailure:
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "sync finished",
		"sync_id", ev.OperationID,
		"branch", ev.Branch,
		"status", ev.Status,
		"commit", ev.CommitHash,
		"conflicts", len(ev.Conflicts),
		"duration", ev.Duration,
		"error", ev.Error,
	)
	return nil
}

// Multi fans an event out to every notifier. All are attempted; failures
// are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// FromChannels builds a notifier from channel specs such as "log" and
// "webhook:https://hooks.example.com/sync". An empty list yields an empty
// Multi.
func FromChannels(channels []string, logger *slog.Logger, opts ...WebhookOption) (Multi, error) {
	var out Multi
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		switch {
		case ch == ChannelLog:
			out = append(out, NewLogNotifier(logger))
		case strings.HasPrefix(ch, ChannelWebhook):
			w, err := NewWebhook(strings.TrimPrefix(ch, ChannelWebhook), append([]WebhookOption{WithWebhookLogger(logger)}, opts...)...)
			if err != nil {
				return nil, err
			}
			out = append(out, w)
		default:
			return nil, wterrors.NewConfigInvalid("sync.notification_channels",
				fmt.Sprintf("unknown channel %q (want %q or %q<url>)", ch, ChannelLog, ChannelWebhook))
		}
	}
	return out, nil
}
