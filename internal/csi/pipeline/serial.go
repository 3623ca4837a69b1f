package pipeline

import (
	"context"
)

// LineSource is the subset of a serial mux the pipeline reads from.
type LineSource interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// RunSerial subscribes to src and feeds every line through p until ctx is
// done or the subscription channel is closed.
func RunSerial(ctx context.Context, src LineSource, p *Pipeline) error {
	id, lines := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			p.HandleLine(ctx, line)
		}
	}
}
