// Package subscriber wires run progress events to the run service so task
// completion drives the pipeline forward without a polling loop.
package subscriber

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/eventbus"
)

// RunProgressHandler reacts to a task reaching a terminal state.
type RunProgressHandler interface {
	HandleTaskFinished(ctx context.Context, event eventbus.RunEvent) error
}

// RegisterRunEventSubscriber subscribes the handler to task completion events
// and returns a function that removes the subscriptions.
func RegisterRunEventSubscriber(bus *eventbus.RunEventBus, handler RunProgressHandler) func() {
	onFinished := func(ctx context.Context, event eventbus.RunEvent) error {
		klog.V(6).Infof("task finished event: runID=%d, taskID=%d, status=%s",
			event.RunID, event.TaskID, event.Status)
		return handler.HandleTaskFinished(ctx, event)
	}

	unsubscribeSucceeded := bus.Subscribe(eventbus.RunEventTaskSucceeded, onFinished)
	unsubscribeFailed := bus.Subscribe(eventbus.RunEventTaskFailed, onFinished)

	return func() {
		unsubscribeSucceeded()
		unsubscribeFailed()
	}
}
