package main

import (
	"context"
	"io"
	"testing"

	"github.com/schollz/progressbar/v3"

	"github.com/serpwatch/serpwatch/internal/eventbus"
)

func TestProgressTickerCountsTerminalEvents(t *testing.T) {
	bus := eventbus.NewRunEventBus()
	bar := progressbar.NewOptions(2, progressbar.OptionSetWriter(io.Discard))

	// Subscriptions are in place before any event can fire, so no tick is
	// ever dropped.
	defer bus.Subscribe(eventbus.RunEventTaskSucceeded, progressTicker(bar))()
	defer bus.Subscribe(eventbus.RunEventTaskFailed, progressTicker(bar))()

	ctx := context.Background()
	if err := bus.Publish(ctx, eventbus.RunEventTaskSucceeded, eventbus.RunEvent{
		Type: eventbus.RunEventTaskSucceeded, RunID: 1, TaskID: 1,
	}); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	if err := bus.Publish(ctx, eventbus.RunEventTaskFailed, eventbus.RunEvent{
		Type: eventbus.RunEventTaskFailed, RunID: 1, TaskID: 2,
	}); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	if got := bar.State().CurrentNum; got != 2 {
		t.Fatalf("expected 2 ticks, got %d", got)
	}
}
