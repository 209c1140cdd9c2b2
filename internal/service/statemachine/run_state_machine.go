package statemachine

import (
	"k8s.io/klog/v2"
)

// RunStatus enumerates the states of an extraction run. A run walks the
// pipeline stages in order: harvest, cleanup pass, artifact publish.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"    // keyword tasks executing
	RunStatusCleaning   RunStatus = "cleaning"   // cleanup pass over data files
	RunStatusPublishing RunStatus = "publishing" // artifacts + git commit/push
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCanceled   RunStatus = "canceled"
)

type RunTransition struct {
	From RunStatus
	To   RunStatus
}

type RunStateMachine struct {
	allowedTransitions map[RunTransition]bool
}

func NewRunStateMachine() *RunStateMachine {
	sm := &RunStateMachine{
		allowedTransitions: make(map[RunTransition]bool),
	}

	// pending -> running -> cleaning -> publishing -> succeeded
	// any in-flight stage -> failed
	// pending/running -> canceled
	// terminal -> pending (reset)
	transitions := []RunTransition{
		{RunStatusPending, RunStatusRunning},
		{RunStatusRunning, RunStatusCleaning},
		{RunStatusCleaning, RunStatusPublishing},
		{RunStatusPublishing, RunStatusSucceeded},

		{RunStatusPending, RunStatusFailed},
		{RunStatusRunning, RunStatusFailed},
		{RunStatusCleaning, RunStatusFailed},
		{RunStatusPublishing, RunStatusFailed},

		{RunStatusPending, RunStatusCanceled},
		{RunStatusRunning, RunStatusCanceled},

		{RunStatusFailed, RunStatusPending},
		{RunStatusSucceeded, RunStatusPending},
		{RunStatusCanceled, RunStatusPending},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

func (sm *RunStateMachine) CanTransition(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[RunTransition{From: from, To: to}]
}

func (sm *RunStateMachine) ValidateTransition(from, to RunStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Kind: "run",
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

func (sm *RunStateMachine) Transition(from, to RunStatus, runID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("run state transition rejected: runID=%d, %s -> %s, error=%v",
			runID, from, to, err)
		return err
	}

	klog.V(6).Infof("run state transition: runID=%d, %s -> %s", runID, from, to)
	return nil
}

// IsRunTerminal reports whether a run has finished for good.
func IsRunTerminal(status RunStatus) bool {
	return status == RunStatusSucceeded || status == RunStatusFailed || status == RunStatusCanceled
}
