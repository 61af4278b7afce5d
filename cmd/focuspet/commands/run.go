package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/focuspet/internal/app"
	"github.com/bryanchriswhite/focuspet/internal/capture"
	_ "github.com/bryanchriswhite/focuspet/internal/capture/gstreamer"
	_ "github.com/bryanchriswhite/focuspet/internal/capture/subprocess"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/gaze/worker"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/bryanchriswhite/focuspet/internal/notify"
	"github.com/bryanchriswhite/focuspet/internal/overlay"
	"github.com/spf13/cobra"
)

func runPet(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("main")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Str("camera", cfg.Camera.Backend).
		Msg("Starting focuspet")

	configMgr.Watch(func(c *config.Config) {
		logger.SetLevel(c.LogLevel)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	surface, err := overlay.NewX11Surface(cfg.Overlay.Title)
	if err != nil {
		return fmt.Errorf("failed to open overlay window: %w", err)
	}
	defer surface.Close()

	source, err := capture.New(cfg.Camera)
	if err != nil {
		return fmt.Errorf("failed to create camera source: %w", err)
	}

	classifier, err := worker.New(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("failed to create gaze classifier: %w", err)
	}

	notifier := newNotifier(cfg)
	defer notifier.Close()

	pet, err := app.New(app.Deps{
		Config:     cfg,
		Surface:    surface,
		Animation:  overlay.LoadOrPlaceholder(cfg.Overlay.Asset, cfg.Overlay.FallbackSize, cfg.Overlay.Title),
		Source:     source,
		Classifier: classifier,
		Notifier:   notifier,
	})
	if err != nil {
		return err
	}

	// detached from signals; Stop ends it after the monitor has exited
	if err := classifier.Start(context.WithoutCancel(ctx)); err != nil {
		pet.Shutdown()
		return fmt.Errorf("failed to start gaze worker: %w", err)
	}
	defer classifier.Stop()

	log.Info().Msg("Watching. Press Escape on the pet to close it, Ctrl+C to quit")

	if err := pet.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Shutting down gracefully")
	return nil
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if !cfg.Notifications.Enabled {
		return notify.Nop{}
	}

	desktop, err := notify.NewDesktop()
	if err != nil {
		logger.WithComponent("main").Warn().Err(err).Msg("Desktop notifications unavailable")
		return notify.Nop{}
	}
	return desktop
}
