// Package api is the operator surface: pass-through HTTP controls for
// recognition, acquisition and saving, a WebSocket live stream and charts.
package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/emg.gesture/internal/acquire"
	"github.com/banshee-data/emg.gesture/internal/autosave"
	"github.com/banshee-data/emg.gesture/internal/db"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recognition"
	"github.com/banshee-data/emg.gesture/internal/recording"
)

// ANSI escape codes for the request log.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Recognition starts and stops background sessions.
type Recognition interface {
	Start(ctx context.Context) (*recognition.Session, error)
	Stop() (recognition.Result, error)
	Status() recognition.Status
}

// Acquisition is the live display loop.
type Acquisition interface {
	Pause()
	Resume()
	Status() acquire.Status
	Snapshot() recording.Snapshot
}

// Recorder saves the live buffer on demand and on a timer.
type Recorder interface {
	SaveNow(recording.Format) ([]autosave.SavedFile, error)
	Settings() autosave.Settings
	Update(autosave.Settings) error
	Status() autosave.Status
}

// History lists past sessions and saved files.
type History interface {
	RecentSessions(limit int) ([]db.Session, error)
	RecentSavedFiles(limit int) ([]db.SavedFile, error)
}

// Options wire a Server. History, Live and PersistAutoSave are optional.
type Options struct {
	Recognition Recognition
	Acquisition Acquisition
	Recorder    Recorder
	History     History
	Live        *Hub
	// PersistAutoSave stores edited auto-save settings, typically in the
	// configuration file.
	PersistAutoSave func(autosave.Settings) error
	// ReloadModel, when set, serves POST /api/recognition/model.
	ReloadModel func() (ModelInfo, error)
	// RecordingsRoot, when set, confines auto-save paths to this directory.
	RecordingsRoot string
	// BaseContext parents recognition sessions so they outlive the request
	// that started them.
	BaseContext context.Context
}

// ModelInfo describes the gesture model loaded by a reload.
type ModelInfo struct {
	Path       string   `json:"path"`
	Labels     []string `json:"labels"`
	WindowSize int      `json:"window_size"`
	Channels   int      `json:"channels"`
}

// Server serves the operator API.
type Server struct {
	opts Options
}

// NewServer returns a server over opts.
func NewServer(opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Server{opts: opts}
}

// ServeMux returns the routes of the operator API.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/recognition", s.showRecognition)
	mux.HandleFunc("/api/recognition/start", s.startRecognition)
	mux.HandleFunc("/api/recognition/stop", s.stopRecognition)
	if s.opts.ReloadModel != nil {
		mux.HandleFunc("/api/recognition/model", s.reloadModel)
	}
	mux.HandleFunc("/api/acquisition", s.showAcquisition)
	mux.HandleFunc("/api/acquisition/pause", s.pauseAcquisition)
	mux.HandleFunc("/api/acquisition/resume", s.resumeAcquisition)
	mux.HandleFunc("/api/save", s.saveNow)
	mux.HandleFunc("/api/autosave", s.handleAutoSave)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/files", s.listSavedFiles)
	mux.HandleFunc("/charts/live", s.liveChart)
	mux.HandleFunc("/charts/live.png", s.livePNG)
	if s.opts.Live != nil {
		mux.Handle("/ws/live", s.opts.Live)
	}
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes WebSocket upgrades through to the underlying connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
