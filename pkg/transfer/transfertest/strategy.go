// Package transfertest provides fakes for testing code that drives
// artifact transfers.
package transfertest

import (
	"context"
	"sync"

	"github.com/modeldepot/core/pkg/transfer"
)

// FakeStrategy records the tasks it is given and finishes them
// according to how the test configured it. The zero configuration
// completes every task immediately.
type FakeStrategy struct {
	mu         sync.Mutex
	tasks      []*transfer.Task
	err        error
	panicValue any
	blockCh    chan struct{}
}

func NewFakeStrategy() *FakeStrategy {
	return &FakeStrategy{}
}

// FailWith makes subsequent transfers return err.
func (s *FakeStrategy) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// PanicWith makes subsequent transfers panic with value.
func (s *FakeStrategy) PanicWith(value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicValue = value
}

// Block makes subsequent transfers wait until Release is called or
// their context is cancelled.
func (s *FakeStrategy) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockCh = make(chan struct{})
}

// Release unblocks transfers waiting after Block.
func (s *FakeStrategy) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockCh != nil {
		close(s.blockCh)
		s.blockCh = nil
	}
}

func (s *FakeStrategy) Transfer(ctx context.Context, task *transfer.Task) error {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	block := s.blockCh
	err := s.err
	panicValue := s.panicValue
	s.mu.Unlock()

	if panicValue != nil {
		panic(panicValue)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Tasks returns a copy of the tasks seen so far.
func (s *FakeStrategy) Tasks() []*transfer.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]*transfer.Task, len(s.tasks))
	copy(tasks, s.tasks)
	return tasks
}

func (s *FakeStrategy) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
