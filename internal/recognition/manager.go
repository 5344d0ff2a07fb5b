package recognition

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/emg.gesture/internal/daq"
)

var (
	// ErrAlreadyRunning rejects a Start while a session is running.
	ErrAlreadyRunning = errors.New("a recognition session is already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("no recognition session is running")
	// ErrNoRecognizer is returned by Start before a model is loaded.
	ErrNoRecognizer = errors.New("no gesture model loaded")
)

// Manager allows at most one running session per handle.
type Manager struct {
	handle *daq.Handle
	opts   Options

	mu       sync.Mutex
	rec      Recognizer
	current  *Session
	last     *Result
	handlers []func(Result)
}

// NewManager returns a manager for handle. rec may be nil until a model is
// loaded with SetRecognizer.
func NewManager(handle *daq.Handle, rec Recognizer, opts Options) *Manager {
	return &Manager{handle: handle, rec: rec, opts: opts}
}

// SetRecognizer swaps the model used by future sessions.
func (m *Manager) SetRecognizer(rec Recognizer) {
	m.mu.Lock()
	m.rec = rec
	m.mu.Unlock()
}

// OnResult registers a handler called once per finished session, on the
// session goroutine, before Done is closed.
func (m *Manager) OnResult(f func(Result)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, f)
	m.mu.Unlock()
}

// Start launches a session. The session context derives from ctx.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return nil, ErrAlreadyRunning
	}
	if m.rec == nil {
		return nil, ErrNoRecognizer
	}
	s := newSession(m.handle, m.rec, m.opts, m.finished)
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

func (m *Manager) finished(res Result) {
	m.mu.Lock()
	if m.current != nil && m.current.id == res.SessionID {
		m.current = nil
	}
	m.last = &res
	handlers := append([]func(Result){}, m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(res)
	}
}

// Stop cancels the running session and waits for it to release the handle.
func (m *Manager) Stop() (Result, error) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return Result{}, ErrNotRunning
	}
	return s.Stop(), nil
}

// Current returns the running session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Last returns the most recent finished result.
func (m *Manager) Last() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

// Status is reported by GET /api/recognition.
type Status struct {
	State     State   `json:"state"`
	SessionID string  `json:"session_id,omitempty"`
	Last      *Result `json:"last,omitempty"`
	ModelSet  bool    `json:"model_loaded"`
}

// Status summarizes the manager for the operator API.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: Idle, Last: m.last, ModelSet: m.rec != nil}
	if m.current != nil {
		st.State = m.current.State()
		st.SessionID = m.current.id
	} else if m.last != nil {
		st.State = m.last.State
	}
	return st
}
