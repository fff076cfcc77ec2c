package cli

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mitsi/recorder/internal/cleanup"
	"mitsi/recorder/internal/clock"
	"mitsi/recorder/internal/config"
	"mitsi/recorder/internal/observability"
)

func NewCleanupCmd() *cobra.Command {
	var maxAgeHours int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove session artifacts older than the max age",
		Long:  "Scans the recording directory and removes session subdirectories whose last modification is older than the given age. Meant to run from cron or a systemd timer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()
			log := observability.NewLogger(cfg.Server.LogLevel)

			m := cleanup.NewManager(cfg.Recording.Dir, clock.Real(), log)
			m.CleanupOldSessions(time.Duration(maxAgeHours) * time.Hour)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 24, "remove session directories older than this many hours")
	return cmd
}
