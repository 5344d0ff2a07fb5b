// Package app owns the long-lived service state: the DAQ handle, the
// acquisition loop, recognition sessions, auto-save, the session database
// and the operator API. Nothing here is global; cmd/emgctl builds one App.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/emg.gesture/internal/acquire"
	"github.com/banshee-data/emg.gesture/internal/api"
	"github.com/banshee-data/emg.gesture/internal/autosave"
	"github.com/banshee-data/emg.gesture/internal/classifier"
	"github.com/banshee-data/emg.gesture/internal/config"
	"github.com/banshee-data/emg.gesture/internal/daq"
	"github.com/banshee-data/emg.gesture/internal/db"
	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/publish"
	"github.com/banshee-data/emg.gesture/internal/recognition"
	"github.com/banshee-data/emg.gesture/internal/timeutil"
)

// Deps overrides the parts New would otherwise build from the config.
// Tests use it to inject scripted devices and clocks.
type Deps struct {
	Source     daq.Source
	Recognizer recognition.Recognizer
	Publisher  publish.Publisher
	Clock      timeutil.Clock
}

// App is the running service.
type App struct {
	cfgPath string

	cfgMu sync.Mutex
	cfg   *config.Config

	Handle    *daq.Handle
	Loop      *acquire.Loop
	Manager   *recognition.Manager
	Saver     *autosave.Saver
	DB        *db.DB
	Publisher publish.Publisher
	Hub       *api.Hub
}

// New builds every component from cfg. cfgPath is where edited auto-save
// settings are written back; empty disables persistence.
func New(cfg *config.Config, cfgPath string, deps Deps) (*App, error) {
	a := &App{cfg: cfg, cfgPath: cfgPath}

	src := deps.Source
	if src == nil {
		var err error
		if src, err = openSource(cfg); err != nil {
			return nil, err
		}
	}
	handle, err := daq.NewHandle(src, cfg.Device.Settings, cfg.GetReadTimeout())
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to configure DAQ device: %w", err)
	}
	a.Handle = handle

	history, err := acquire.NewHistory(cfg.Device.Settings.Channels, cfg.Acquisition.HistorySize, cfg.Device.Settings.SampleRate)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Hub = api.NewHub()
	a.Loop, err = acquire.NewLoop(acquire.Config{
		Handle:   handle,
		History:  history,
		Interval: cfg.GetTickInterval(),
		Display:  a.Hub,
		Clock:    deps.Clock,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	rec := deps.Recognizer
	if rec == nil {
		rec, err = loadRecognizer(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Manager = recognition.NewManager(handle, rec, recognition.Options{MaxAttempts: cfg.Recognition.MaxAttempts})

	a.Saver, err = autosave.NewSaver(a.Loop, cfg.AutoSave, deps.Clock)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.DB, err = db.NewDB(cfg.Storage.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	a.Publisher = deps.Publisher
	if a.Publisher == nil {
		a.Publisher, err = openPublisher(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Manager.OnResult(a.recordResult)
	a.Saver.OnSave(a.recordSaves)
	return a, nil
}

func openSource(cfg *config.Config) (daq.Source, error) {
	switch cfg.Device.Source {
	case config.SourceSerial:
		src, err := daq.OpenSerial(cfg.Device.Port, cfg.Device.Serial)
		if err != nil {
			return nil, fmt.Errorf("failed to open DAQ device %s: %w", cfg.Device.Port, err)
		}
		monitoring.Logf("using serial DAQ device %s", cfg.Device.Port)
		return src, nil
	default:
		monitoring.Logf("using synthetic DAQ device (seed %d)", cfg.Device.Seed)
		return daq.NewSyntheticSource(cfg.Device.Seed, true), nil
	}
}

// loadRecognizer returns nil without error when no model file exists yet;
// recognition is then refused until a model is loaded with ReloadModel.
func loadRecognizer(cfg *config.Config) (recognition.Recognizer, error) {
	c, err := loadModel(cfg)
	if errors.Is(err, fs.ErrNotExist) {
		monitoring.Logf("no gesture model at %s; recognition disabled until one is loaded", cfg.Recognition.ModelPath)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func loadModel(cfg *config.Config) (*classifier.Classifier, error) {
	c, err := classifier.Load(cfg.Recognition.ModelPath, cfg.Recognition.MinConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to load gesture model: %w", err)
	}
	if _, ch := c.InputShape(); ch != cfg.Device.Settings.Channels {
		return nil, fmt.Errorf("gesture model expects %d channels, device has %d: %w", ch, cfg.Device.Settings.Channels,
			&emg.ShapeError{Expected: emg.Shape{cfg.Device.Settings.Channels}, Actual: emg.Shape{ch}})
	}
	monitoring.Logf("loaded gesture model %s (labels %v)", cfg.Recognition.ModelPath, c.Labels().Names)
	return c, nil
}

// ReloadModel reads the configured model artifact again and hands it to
// future recognition sessions. A running session keeps its model.
func (a *App) ReloadModel() (api.ModelInfo, error) {
	cfg := a.Config()
	c, err := loadModel(cfg)
	if err != nil {
		return api.ModelInfo{}, err
	}
	a.Manager.SetRecognizer(c)
	window, channels := c.InputShape()
	return api.ModelInfo{
		Path:       cfg.Recognition.ModelPath,
		Labels:     c.Labels().Names,
		WindowSize: window,
		Channels:   channels,
	}, nil
}

func openPublisher(cfg *config.Config) (publish.Publisher, error) {
	if !cfg.MQTT.Enabled {
		return publish.NopPublisher{}, nil
	}
	p, err := publish.Dial(publish.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         byte(cfg.MQTT.QoS),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SessionRecord converts a result into its database row.
func SessionRecord(res recognition.Result) db.Session {
	s := db.Session{
		SessionID:  res.SessionID,
		State:      res.State.String(),
		Error:      res.Error,
		Attempts:   res.Attempts,
		Reads:      res.Reads,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if p := res.Prediction; p != nil {
		s.Label = p.Label
		s.Best = p.Best
		s.Confidence = p.Confidence
		s.Probabilities = p.Probabilities
	}
	return s
}

// recordResult runs on the session goroutine before the session reports
// done, so storage and publishing never see a half-finished session.
func (a *App) recordResult(res recognition.Result) {
	if err := a.DB.RecordSession(SessionRecord(res)); err != nil {
		monitoring.Logf("failed to record session %s: %v", res.SessionID, err)
	}
	if err := a.Publisher.Publish(res); err != nil {
		monitoring.Logf("failed to publish session %s: %v", res.SessionID, err)
	}
}

func (a *App) recordSaves(files []autosave.SavedFile) {
	for _, f := range files {
		if _, err := a.DB.RecordSavedFile(db.SavedFile{
			Path:    f.Path,
			Format:  string(f.Format),
			Samples: f.Samples,
			Bytes:   f.Bytes,
			Auto:    f.Auto,
			SavedAt: f.SavedAt,
		}); err != nil {
			monitoring.Logf("failed to record saved file %s: %v", f.Path, err)
		}
	}
}

// persistAutoSave writes edited auto-save settings to the config file.
func (a *App) persistAutoSave(s autosave.Settings) error {
	if a.cfgPath == "" {
		return nil
	}
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	next := *a.cfg
	next.AutoSave = s
	if err := config.Save(a.cfgPath, &next); err != nil {
		return err
	}
	a.cfg = &next
	return nil
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.cfg
}

// Handler returns the operator API with the debug routes mounted.
func (a *App) Handler(ctx context.Context) (http.Handler, error) {
	mux := api.NewServer(api.Options{
		Recognition:     a.Manager,
		Acquisition:     a.Loop,
		Recorder:        a.Saver,
		History:         a.DB,
		Live:            a.Hub,
		PersistAutoSave: a.persistAutoSave,
		ReloadModel:     a.ReloadModel,
		BaseContext:     ctx,
	}).ServeMux()
	a.Handle.AttachAdminRoutes(mux)
	if err := a.DB.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return api.LoggingMiddleware(mux), nil
}

// Run starts the acquisition loop, auto-save and the HTTP server, and blocks
// until ctx is cancelled. Shutdown stops any running session first so the
// lease is released before the device closes.
func (a *App) Run(ctx context.Context) error {
	handler, err := a.Handler(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Loop.Run(ctx); err != nil {
			monitoring.Logf("acquisition loop: %v", err)
		}
		monitoring.Logf("acquisition routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Saver.Run(ctx); err != nil {
			monitoring.Logf("auto-save: %v", err)
		}
		monitoring.Logf("auto-save routine terminated")
	}()

	server := &http.Server{
		Addr:    a.Config().HTTP.Listen,
		Handler: handler,
	}
	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitoring.Logf("operator API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		monitoring.Logf("HTTP server failed: %v", runErr)
	}

	if _, err := a.Manager.Stop(); err == nil {
		monitoring.Logf("stopped running recognition session")
	}
	a.Loop.Stop()
	a.Saver.Stop()
	a.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
	return runErr
}

// Close releases the device, the database and the broker connection.
func (a *App) Close() error {
	var errs []error
	if a.Manager != nil {
		a.Manager.Stop()
	}
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Handle != nil {
		errs = append(errs, a.Handle.Close())
	}
	return errors.Join(errs...)
}
