package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/banshee-data/emg.gesture/internal/classifier"
	"github.com/banshee-data/emg.gesture/internal/daq"
	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
)

// ErrNoGesture ends a session that used up its attempts without recognizing
// anything.
var ErrNoGesture = errors.New("no gesture recognized")

// Recognizer classifies one raw window. *classifier.Classifier implements it.
type Recognizer interface {
	Recognize(emg.Window) (classifier.Prediction, error)
	InputShape() (windowSize, channels int)
}

// Options tune a session.
type Options struct {
	// SamplesPerRead defaults to the handle's setting.
	SamplesPerRead int
	// MaxAttempts bounds inference calls; zero means keep sampling until
	// stopped.
	MaxAttempts int
}

// Result is the single outcome of a session.
type Result struct {
	SessionID  string                 `json:"session_id"`
	State      State                  `json:"state"`
	Prediction *classifier.Prediction `json:"prediction,omitempty"`
	Err        error                  `json:"-"`
	Error      string                 `json:"error,omitempty"`
	Attempts   int                    `json:"attempts"`
	Reads      int                    `json:"reads"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Session is one background recognition task. It owns the handle lease
// from start until it finishes.
type Session struct {
	id     string
	handle *daq.Handle
	rec    Recognizer
	opts   Options
	log    *logrus.Entry

	cancel context.CancelFunc
	done   chan struct{}
	// finish runs on the session goroutine after the lease is released and
	// before done is closed.
	finish func(Result)

	mu     sync.Mutex
	state  State
	result Result
}

func newSession(handle *daq.Handle, rec Recognizer, opts Options, finish func(Result)) *Session {
	id := uuid.NewString()
	if opts.SamplesPerRead <= 0 {
		opts.SamplesPerRead = handle.Settings().SamplesPerRead
	}
	return &Session{
		id:     id,
		handle: handle,
		rec:    rec,
		opts:   opts,
		log:    monitoring.Logger().WithField("session", id),
		done:   make(chan struct{}),
		finish: finish,
		state:  Idle,
	}
}

// start takes the lease and launches the task. It fails without starting
// if the handle cannot be leased.
func (s *Session) start(parent context.Context) error {
	if err := s.handle.Acquire(daq.OwnerRecognition); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	s.mu.Lock()
	s.state = Running
	s.result = Result{SessionID: s.id, State: Running, StartedAt: time.Now()}
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

func (s *Session) run(ctx context.Context) {
	windowSize, _ := s.rec.InputShape()
	s.log.Infof("recognition started: window=%d samples_per_read=%d", windowSize, s.opts.SamplesPerRead)

	res := s.loop(ctx, windowSize)

	s.handle.Release(daq.OwnerRecognition)
	s.cancel()

	res.FinishedAt = time.Now()
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	s.mu.Lock()
	s.state = res.State
	s.result = res
	s.mu.Unlock()

	entry := s.log.WithField("state", res.State.String()).WithField("attempts", res.Attempts)
	switch res.State {
	case Succeeded:
		entry.Infof("recognized %q (confidence %.3f)", res.Prediction.Label, res.Prediction.Confidence)
	case Failed:
		entry.Warnf("recognition failed: %v", res.Err)
	default:
		entry.Infof("recognition cancelled")
	}

	if s.finish != nil {
		s.finish(res)
	}
	close(s.done)
}

// loop samples until a gesture is recognized, the session is stopped or a
// read fails.
func (s *Session) loop(ctx context.Context, windowSize int) Result {
	s.mu.Lock()
	res := s.result
	s.mu.Unlock()

	rows := make([][]float64, 0, windowSize+s.opts.SamplesPerRead)
	for {
		if ctx.Err() != nil {
			res.State = Cancelled
			return res
		}

		b, err := s.handle.Read(ctx, daq.OwnerRecognition, s.opts.SamplesPerRead)
		if err != nil {
			if ctx.Err() != nil {
				res.State = Cancelled
				return res
			}
			res.State, res.Err = Failed, err
			return res
		}
		res.Reads++

		rows = append(rows, b.Rows()...)
		if over := len(rows) - windowSize; over > 0 {
			rows = append(rows[:0], rows[over:]...)
		}
		if len(rows) < windowSize {
			continue
		}

		res.Attempts++
		pred, err := s.rec.Recognize(emg.Window{Samples: rows})
		var zv *emg.ZeroVarianceError
		switch {
		case errors.As(err, &zv):
			// A flat window carries no gesture.
			s.log.Debugf("attempt %d: %v", res.Attempts, err)
		case err != nil:
			res.State, res.Err = Failed, fmt.Errorf("recognize: %w", err)
			return res
		case pred.Known():
			res.State, res.Prediction = Succeeded, &pred
			return res
		default:
			s.log.Debugf("attempt %d: %s (best %s %.3f)", res.Attempts, pred.Label, pred.Best, pred.Confidence)
		}

		if s.opts.MaxAttempts > 0 && res.Attempts >= s.opts.MaxAttempts {
			res.State, res.Err = Failed, fmt.Errorf("%w after %d attempts", ErrNoGesture, res.Attempts)
			return res
		}
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has finished and its lease is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the outcome. It is final once Done is closed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Wait blocks until the session finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop cancels the session and waits until it has exited and released the
// handle. Stopping a finished session returns its result unchanged.
func (s *Session) Stop() Result {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	return s.Result()
}
