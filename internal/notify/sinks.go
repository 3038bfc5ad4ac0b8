package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"proxy-auction/internal/models"
	"proxy-auction/utils"
)

// LogSink writes every event to the process log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Emit(_ context.Context, e models.Event) error {
	fields := map[string]any{
		"event_id":   e.EventID,
		"auction_id": e.AuctionID,
		"kind":       e.Kind,
		"amount":     e.Amount.String(),
		"bid_count":  e.BidCount,
		"phase":      e.Phase,
		"ends_at":    e.EndsAt,
	}
	if e.RecipientID != "" {
		fields["recipient_id"] = e.RecipientID
	}
	utils.Info("auction event", fields)
	return nil
}

// Fanout forwards events to several sinks. When a kind filter is set, only
// the listed kinds are forwarded; the rest count as delivered.
type Fanout struct {
	sinks []Sink
	kinds map[models.EventKind]bool
}

// NewFanout creates a Fanout. An empty kinds list allows every kind.
func NewFanout(sinks []Sink, kinds []string) *Fanout {
	allowed := make(map[models.EventKind]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[models.EventKind(k)] = true
		}
	}
	return &Fanout{sinks: sinks, kinds: allowed}
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

// Emit delivers e to every sink. One failing sink does not stop the others,
// but the combined error keeps the event pending, so sinks that succeeded
// may see it again.
func (f *Fanout) Emit(ctx context.Context, e models.Event) error {
	if len(f.kinds) > 0 && !f.kinds[e.Kind] {
		utils.Debug("event filtered out", map[string]any{"event_id": e.EventID, "kind": e.Kind})
		return nil
	}

	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, e); err != nil {
			utils.Error("sink failed", map[string]any{
				"sink":     s.Name(),
				"event_id": e.EventID,
				"error":    err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
