// Package scheduler triggers harvest runs on a cron spec.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"
)

type Scheduler struct {
	cron    *cron.Cron
	spec    string
	entryID cron.EntryID
}

// New registers trigger on the given cron spec. Standard 5-field specs and
// @-descriptors are both accepted.
func New(spec string, trigger func()) (*Scheduler, error) {
	c := cron.New()
	entryID, err := c.AddFunc(spec, trigger)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &Scheduler{cron: c, spec: spec, entryID: entryID}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	klog.V(6).Infof("scheduler started with spec %q", s.spec)
}

// Stop stops the timer; a trigger already in flight keeps running.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NextRun returns the next scheduled trigger time.
func (s *Scheduler) NextRun() string {
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return ""
	}
	return entry.Next.Format("2006-01-02 15:04:05 MST")
}
