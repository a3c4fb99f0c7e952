// Package flush provides a ticker-driven persistence scheduler: the
// decoupling layer between logical mutations and durable header bytes.
//
// Commit is best-effort and never blocks; it only marks the component
// dirty. A background goroutine flushes dirty state on a fixed cadence
// through the component's Save, and Close performs one final full
// flush. A crash between Commit and the next tick loses at most the
// unflushed header words, which the component's Load tolerates.
package flush

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/plinthdb/plinth"
)

// Scheduler periodically persists a Saver.
type Scheduler struct {
	saver    plinth.Saver
	interval time.Duration

	dirty atomix.Bool
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu  sync.Mutex
	err error
}

var _ plinth.Committer = (*Scheduler)(nil)

// New starts a scheduler flushing saver every interval while dirty.
func New(saver plinth.Saver, interval time.Duration) *Scheduler {
	s := &Scheduler{
		saver:    saver,
		interval: interval,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Commit marks the component dirty. It never blocks; the flush happens
// on the scheduler's own cadence.
func (s *Scheduler) Commit() {
	s.dirty.StoreRelease(true)
}

// Err returns the first error any flush produced, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the scheduler and performs one final full flush,
// returning the sticky first error.
func (s *Scheduler) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.dirty.StoreRelease(false)
		s.record(s.saver.Save())
	})
	return s.Err()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.dirty.CompareAndSwapAcqRel(true, false) {
				s.record(s.saver.Save())
			}
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}
