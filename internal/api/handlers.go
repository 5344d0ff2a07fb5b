package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/banshee-data/emg.gesture/internal/autosave"
	"github.com/banshee-data/emg.gesture/internal/daq"
	"github.com/banshee-data/emg.gesture/internal/db"
	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/httputil"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recognition"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/security"
)

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var (
		shapeErr *emg.ShapeError
		fileErr  *emg.FileIOError
		hwErr    *emg.HardwareReadError
	)
	switch {
	case errors.Is(err, recognition.ErrAlreadyRunning),
		errors.Is(err, recognition.ErrNotRunning),
		errors.Is(err, daq.ErrBusy),
		errors.Is(err, autosave.ErrNothingToSave):
		return http.StatusConflict
	case errors.Is(err, recognition.ErrNoRecognizer),
		errors.Is(err, daq.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &shapeErr):
		return http.StatusBadRequest
	case errors.As(err, &hwErr):
		return http.StatusBadGateway
	case errors.As(err, &fileErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, errorStatus(err), err.Error())
}

func (s *Server) showRecognition(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.opts.Recognition.Status())
}

// startResponse is returned by POST /api/recognition/start.
type startResponse struct {
	SessionID string            `json:"session_id"`
	State     recognition.State `json:"state"`
}

func (s *Server) startRecognition(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	sess, err := s.opts.Recognition.Start(s.opts.BaseContext)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, startResponse{SessionID: sess.ID(), State: sess.State()})
}

func (s *Server) stopRecognition(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	res, err := s.opts.Recognition.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) reloadModel(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	info, err := s.opts.ReloadModel()
	if err != nil {
		writeError(w, err)
		return
	}
	monitoring.Logf("gesture model reloaded from %s", info.Path)
	httputil.WriteJSONOK(w, info)
}

func (s *Server) showAcquisition(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.opts.Acquisition.Status())
}

func (s *Server) pauseAcquisition(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	s.opts.Acquisition.Pause()
	httputil.WriteJSONOK(w, s.opts.Acquisition.Status())
}

func (s *Server) resumeAcquisition(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	s.opts.Acquisition.Resume()
	httputil.WriteJSONOK(w, s.opts.Acquisition.Status())
}

func (s *Server) saveNow(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodPost) {
		return
	}
	format := s.opts.Recorder.Settings().Format
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := recording.ParseFormat(q)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		format = f
	}
	files, err := s.opts.Recorder.SaveNow(format)
	if err != nil {
		monitoring.Logf("save failed: %v", err)
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, files)
}

func (s *Server) handleAutoSave(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if r.Method == http.MethodGet {
		httputil.WriteJSONOK(w, s.opts.Recorder.Status())
		return
	}

	// Fields left out of the body keep their current values.
	settings := s.opts.Recorder.Settings()
	if err := httputil.DecodeJSON(r, &settings); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := settings.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if s.opts.RecordingsRoot != "" {
		if err := security.CheckWithin(settings.Dir, s.opts.RecordingsRoot); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	if s.opts.PersistAutoSave != nil {
		if err := s.opts.PersistAutoSave(settings); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to persist auto-save settings: %v", err))
			return
		}
	}
	if err := s.opts.Recorder.Update(settings); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.opts.Recorder.Status())
}

func queryLimit(r *http.Request) (int, error) {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return 50, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 || n > 1000 {
		return 0, fmt.Errorf("limit must be between 1 and 1000, got %q", q)
	}
	return n, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	if s.opts.History == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "session history is disabled")
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.opts.History.RecentSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listSavedFiles(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	if s.opts.History == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "session history is disabled")
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	files, err := s.opts.History.RecentSavedFiles(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if files == nil {
		files = []db.SavedFile{}
	}
	httputil.WriteJSONOK(w, files)
}
