package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mitsi/recorder/internal/api"
	"mitsi/recorder/internal/browser"
	"mitsi/recorder/internal/capture"
	"mitsi/recorder/internal/cleanup"
	"mitsi/recorder/internal/clock"
	"mitsi/recorder/internal/config"
	"mitsi/recorder/internal/events"
	"mitsi/recorder/internal/merge"
	"mitsi/recorder/internal/observability"
	"mitsi/recorder/internal/recorder"
	"mitsi/recorder/internal/registry"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recording agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	// .env is optional
	_ = godotenv.Load()
	cfg := config.Load()
	log := observability.NewLogger(cfg.Server.LogLevel)

	reg := registry.New()
	ev := events.NewStore()
	clk := clock.Real()
	spawn := capture.Spawner(log)

	audio := capture.NewAudioCapture(cfg.Recording.Dir, cfg.Audio.Codec, cfg.Audio.Bitrate, cfg.Recording.StopGrace, spawn, log)
	size := fmt.Sprintf("%dx%d", cfg.Video.Width, cfg.Video.Height)
	stream := capture.NewStreamRelay(cfg.Recording.Dir, size, cfg.Recording.StopGrace, spawn, log)
	driver := browser.NewCDPDriver(cfg.Video.Width, cfg.Video.Height)
	video := browser.NewAdapter(driver, cfg.Recording.Dir, cfg.Recording.ClientURL, cfg.Recording.PageReadyTimeout, cfg.Recording.JoinTimeout, log)
	cleaner := cleanup.NewManager(cfg.Recording.Dir, clk, log)

	var merger merge.Client = merge.Disabled{}
	if cfg.Merge.URL != "" {
		merger = merge.NewHTTPClient(cfg.Merge.URL, cfg.Merge.Timeout)
	}

	svc := recorder.New(cfg, reg, video, audio, stream, cleaner, merger, ev, clk, log)
	h := api.NewHandlers(cfg, svc, ev, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM: drain active sessions before the
	// HTTP listener goes away.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info().Msg("shutdown signal received; stopping server")
		svc.Shutdown(context.Background())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Info().Str("addr", srv.Addr).Str("recording_dir", cfg.Recording.Dir).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
