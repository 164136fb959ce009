package events

import (
	"context"
	"log"
)

// LogListener subscribes to bus and writes every event as a structured log
// line until ctx is canceled, then unsubscribes. It is the "structured
// logging" listener the package doc names.
func LogListener(ctx context.Context, bus *Bus) {
	client := bus.Subscribe()
	defer bus.Unsubscribe(client)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-client:
			if !ok {
				return
			}
			if event.Stage != "" {
				log.Printf("events: job=%s stage=%s", event.JobID, event.Stage)
			} else {
				log.Printf("events: job=%s progress=%d", event.JobID, event.Progress)
			}
		}
	}
}
