package lifecycle

import "sync"

// Signals fans host-runtime page-lifecycle events out to observers. The
// host calls the Notify methods; components subscribe and unsubscribe.
// Dispatch is synchronous: NotifyUnload returns only after every observer
// ran, so unload work completes before teardown proceeds.
type Signals struct {
	mu       sync.Mutex
	nextID   int
	unload   map[int]func()
	navigate map[int]func()
}

func NewSignals() *Signals {
	return &Signals{
		unload:   make(map[int]func()),
		navigate: make(map[int]func()),
	}
}

// OnUnload registers an imminent-unload observer and returns its
// unsubscribe function. Unsubscribing twice is harmless.
func (s *Signals) OnUnload(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.unload[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.unload, id)
	}
}

// OnNavigate registers a back/forward-navigation observer.
func (s *Signals) OnNavigate(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.navigate[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.navigate, id)
	}
}

// NotifyUnload dispatches the imminent-unload event.
func (s *Signals) NotifyUnload() {
	s.dispatch(s.unload)
}

// NotifyNavigate dispatches the history-navigation event.
func (s *Signals) NotifyNavigate() {
	s.dispatch(s.navigate)
}

// dispatch runs a snapshot of the observers without holding the lock, so
// an observer may unsubscribe itself.
func (s *Signals) dispatch(observers map[int]func()) {
	s.mu.Lock()
	snapshot := make([]func(), 0, len(observers))
	for _, fn := range observers {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn()
	}
}
