package websocket

import (
	"context"
	"time"

	"boleto-import-backend/imports/services"
)

// SnapshotFunc reads the current progress of an import from the database
type SnapshotFunc func(ctx context.Context) (services.ProgressEvent, error)

// StreamProgress emits a database snapshot, then every hub event for the import,
// until the import reaches a terminal status, emit fails or ctx ends. The snapshot
// is re-read every pollInterval so a missed pub/sub message cannot stall the stream.
func StreamProgress(ctx context.Context, hub *Hub, importID string, snapshot SnapshotFunc, emit func(services.ProgressEvent) error, pollInterval time.Duration) error {
	sub := hub.Subscribe(importID)
	defer hub.Unsubscribe(sub)

	last, err := snapshot(ctx)
	if err != nil {
		return err
	}
	if err := emit(last); err != nil {
		return err
	}
	if last.Status.IsTerminal() {
		return nil
	}

	var events chan services.ProgressEvent
	if sub != nil {
		events = sub.Send
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var next services.ProgressEvent
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				// dropped by the hub, fall back to polling
				events = nil
				continue
			}
			next = event

		case <-ticker.C:
			current, err := snapshot(ctx)
			if err != nil {
				return err
			}
			if current == last {
				continue
			}
			next = current
		}

		if err := emit(next); err != nil {
			return err
		}
		last = next
		if next.Status.IsTerminal() {
			return nil
		}
	}
}
