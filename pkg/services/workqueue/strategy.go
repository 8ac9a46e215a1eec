package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy is responsible for tracking running tasks and determining
// if a new task can start based on the current state.
type ConcurrencyStrategy interface {
	// CanStartLLM returns true if an LLM task can start given current state
	CanStartLLM() bool
	// CanStartData returns true if a data task can start given current state
	CanStartData() bool
	// OnStartLLM is called when an LLM task starts
	OnStartLLM()
	// OnStartData is called when a data task starts
	OnStartData()
	// OnCompleteLLM is called when an LLM task completes
	OnCompleteLLM()
	// OnCompleteData is called when a data task completes
	OnCompleteData()
}

// ThrottledStrategy runs up to maxLLM LLM tasks and up to maxData data tasks
// at once. The two lanes never block each other.
type ThrottledStrategy struct {
	mu          sync.Mutex
	maxLLM      int
	maxData     int
	llmRunning  int
	dataRunning int
}

// NewThrottledStrategy creates a strategy with the given lane limits.
// Limits below one are raised to one.
func NewThrottledStrategy(maxLLM, maxData int) *ThrottledStrategy {
	return &ThrottledStrategy{
		maxLLM:  max(maxLLM, 1),
		maxData: max(maxData, 1),
	}
}

// NewSerializedStrategy runs one LLM task and one data task at a time.
func NewSerializedStrategy() *ThrottledStrategy {
	return NewThrottledStrategy(1, 1)
}

func (s *ThrottledStrategy) CanStartLLM() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llmRunning < s.maxLLM
}

func (s *ThrottledStrategy) CanStartData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataRunning < s.maxData
}

func (s *ThrottledStrategy) OnStartLLM() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llmRunning++
}

func (s *ThrottledStrategy) OnStartData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataRunning++
}

func (s *ThrottledStrategy) OnCompleteLLM() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.llmRunning > 0 {
		s.llmRunning--
	}
}

func (s *ThrottledStrategy) OnCompleteData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataRunning > 0 {
		s.dataRunning--
	}
}
