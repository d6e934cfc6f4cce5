package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/app"
	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/events"
	"github.com/ayusman/facewatch/internal/hook"
	"github.com/ayusman/facewatch/internal/journal"
	"github.com/ayusman/facewatch/internal/logging"
	"github.com/ayusman/facewatch/internal/metrics"
	"github.com/ayusman/facewatch/internal/server"
	"github.com/ayusman/facewatch/internal/tray"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start detection and the HTTP server",
	Long: `Start the camera, run face detection on every frame and publish
events. The HTTP server exposes a preview stream, an event websocket,
the recent event journal and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	defineServeFlags(serveCmd)
}

func defineServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("camera", "", "Camera to use: front or back")
	cmd.Flags().String("policy", "", "Notification policy: on-change or always")
	cmd.Flags().String("addr", "", "HTTP listen address (empty string in config disables the server)")
	cmd.Flags().String("backend", "", "Detector backend: cascade or service")
	cmd.Flags().String("accuracy", "", "Detector accuracy: battery-saving or higher-performance")
	cmd.Flags().String("orientation", "", "Frame orientation: up, down, right or left")
	cmd.Flags().String("log-level", "", "Log level")
	cmd.Flags().Bool("tray", false, "Show a system tray icon")
	cmd.Flags().Bool("paused", false, "Start with detection paused")
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	strs := map[string]*string{
		"camera":      &cfg.Camera.Selector,
		"policy":      &cfg.Tracker.Policy,
		"addr":        &cfg.Server.Addr,
		"backend":     &cfg.Detector.Backend,
		"accuracy":    &cfg.Detector.Accuracy,
		"orientation": &cfg.Detector.Orientation,
		"log-level":   &cfg.Log.Level,
	}
	for name, dst := range strs {
		if cmd.Flags().Changed(name) {
			*dst = mustGetString(cmd, name)
		}
	}
	if cmd.Flags().Changed("tray") {
		cfg.Tray = mustGetBool(cmd, "tray")
	}
	if cmd.Flags().Changed("paused") {
		cfg.Detector.StartPaused = mustGetBool(cmd, "paused")
	}
	return cfg.Validate()
}

func newExtractor(cfg *config.Config) (detector.Extractor, error) {
	dc, err := cfg.Extractor()
	if err != nil {
		return nil, err
	}
	if cfg.Detector.Backend == "service" {
		return detector.NewServiceExtractor(dc)
	}
	return detector.NewCascadeExtractor(dc)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	log, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	selector, err := cfg.Selector()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	orientation, err := cfg.Orientation()
	if err != nil {
		return err
	}

	extractor, err := newExtractor(cfg)
	if err != nil {
		return fmt.Errorf("create %s detector: %w", cfg.Detector.Backend, err)
	}

	sessionCfg := cfg.Session()
	sessionCfg.Logger = log.WithField("component", "capture")

	m := metrics.New()
	bus := events.NewBus()

	application, err := app.New(app.Config{
		Session:       capture.NewSession(sessionCfg),
		Selector:      selector,
		Extractor:     extractor,
		Policy:        policy,
		Orientation:   orientation,
		Bus:           bus,
		Metrics:       m,
		Logger:        log.WithField("component", "app"),
		StartDisabled: cfg.Detector.StartPaused,
	})
	if err != nil {
		extractor.Close()
		return err
	}
	defer application.Close()

	j, err := journal.New(journal.Config{
		MaxRows: cfg.Journal.MaxRows,
		Logger:  log.WithField("component", "journal"),
	})
	if err != nil {
		return err
	}
	defer j.Close()

	journalQueue := events.NewQueue(0, j.Handle)
	unsubscribeJournal := bus.SubscribeAll(journalQueue.Handle)
	defer journalQueue.Close()
	defer unsubscribeJournal()

	dispatcher, err := hook.NewDispatcher(cfg.Hooks, hook.NewExecutor(hook.DefaultTimeout), log.WithField("component", "hook"))
	if err != nil {
		return err
	}
	if dispatcher.Len() > 0 {
		dispatcher.Attach(bus, 0)
		log.WithField("count", dispatcher.Len()).Info("hooks attached")
	}
	defer dispatcher.Close()

	if log.IsLevelEnabled(logrus.DebugLevel) {
		defer bus.SubscribeAll(func(e events.Event) {
			log.WithFields(logrus.Fields{
				"kind":  e.Kind,
				"frame": e.Seq,
			}).Debug("event")
		})()
	}

	if err := application.Start(); err != nil {
		var cerr *capture.ConfigurationError
		if errors.As(err, &cerr) {
			return fmt.Errorf("%w (run 'facewatch devices' to list cameras)", err)
		}
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverDone := make(chan struct{})
	if cfg.Server.Addr != "" {
		staticDir := cfg.Server.StaticDir
		if staticDir == "" {
			staticDir = findWebDir()
		}
		if staticDir != "" {
			log.WithField("dir", staticDir).Info("serving static files")
		}

		srv := server.New(server.Config{
			StaticDir: staticDir,
			Detection: application,
			Frames:    application.Session(),
			Events:    bus,
			Journal:   j,
			Metrics:   m,
			Logger:    log.WithField("component", "server"),
		})

		go func() {
			defer close(serverDone)
			log.WithField("addr", cfg.Server.Addr).Info("starting server")
			if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
				log.WithError(err).Error("server failed")
				cancel()
			}
		}()
	} else {
		close(serverDone)
	}

	if cfg.Tray {
		runTray(ctx, cancel, cfg, application, bus, log)
	} else {
		<-ctx.Done()
	}

	log.Info("shutting down")
	cancel()
	<-serverDone
	application.Stop()
	return nil
}

// runTray blocks on the tray event loop until ctx ends or Quit is chosen.
func runTray(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, application *app.App, bus *events.Bus, log logrus.FieldLogger) {
	t := tray.New(application.IsEnabled())
	t.OnToggle(func(enabled bool) {
		application.SetEnabled(enabled)
		log.WithField("enabled", enabled).Info("detection toggled from tray")
	})
	t.OnQuit(cancel)
	if cfg.Server.Addr != "" {
		url := previewURL(cfg.Server.Addr)
		t.OnPreview(func() {
			if err := openBrowser(url); err != nil {
				log.WithError(err).Warn("failed to open preview")
			}
		})
	}

	q := events.NewQueue(0, t.Handle)
	unsubscribe := bus.SubscribeAll(q.Handle)
	defer q.Close()
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func previewURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.facewatch/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".facewatch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
