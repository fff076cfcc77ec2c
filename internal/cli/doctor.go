package cli

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mitsi/recorder/internal/config"
	"mitsi/recorder/internal/health"
)

func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()

			st := health.CheckAll(cfg.Recording.Dir)
			fmt.Print(st.String())
			if !st.OK {
				return errors.New("some prerequisites are missing")
			}
			return nil
		},
	}
}
