package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// TaskStatus enumerates the states of a per-keyword extraction task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // created, not yet submitted
	TaskStatusQueued    TaskStatus = "queued"    // waiting in the orchestrator queue
	TaskStatusRunning   TaskStatus = "running"   // harvest in progress
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

type TaskTransition struct {
	From TaskStatus
	To   TaskStatus
}

type TaskStateMachine struct {
	allowedTransitions map[TaskTransition]bool
}

func NewTaskStateMachine() *TaskStateMachine {
	sm := &TaskStateMachine{
		allowedTransitions: make(map[TaskTransition]bool),
	}

	// pending -> queued -> running -> succeeded/failed
	// queued/running -> canceled
	// terminal -> pending (reset/retry)
	transitions := []TaskTransition{
		{TaskStatusPending, TaskStatusQueued},
		{TaskStatusQueued, TaskStatusRunning},
		{TaskStatusRunning, TaskStatusSucceeded},
		{TaskStatusRunning, TaskStatusFailed},

		{TaskStatusFailed, TaskStatusPending},
		{TaskStatusSucceeded, TaskStatusPending},
		{TaskStatusCanceled, TaskStatusPending},

		{TaskStatusQueued, TaskStatusCanceled},
		{TaskStatusRunning, TaskStatusCanceled},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

func (sm *TaskStateMachine) CanTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[TaskTransition{From: from, To: to}]
}

func (sm *TaskStateMachine) ValidateTransition(from, to TaskStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Kind: "task",
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition validates and logs a state change for a task.
func (sm *TaskStateMachine) Transition(from, to TaskStatus, taskID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("task state transition rejected: taskID=%d, %s -> %s, error=%v",
			taskID, from, to, err)
		return err
	}

	klog.V(6).Infof("task state transition: taskID=%d, %s -> %s", taskID, from, to)
	return nil
}

type InvalidStateTransitionError struct {
	Kind string
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s", e.Kind, e.From, e.To)
}

// IsTerminal reports whether a task can no longer move forward.
func IsTerminal(status TaskStatus) bool {
	return status == TaskStatusSucceeded || status == TaskStatusFailed || status == TaskStatusCanceled
}

// IsRunning reports whether a task occupies the pipeline (queued or running).
func IsRunning(status TaskStatus) bool {
	return status == TaskStatusQueued || status == TaskStatusRunning
}
