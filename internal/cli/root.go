package cli

import (
	"github.com/spf13/cobra"

	"mitsi/recorder/internal/version"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recorder",
		Short: "Record and live-stream virtual meeting sessions",
		Long:  "An agent that drives a headless browser into a meeting, captures audio and video, optionally relays a live stream, and tears everything down when told to stop.",
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCleanupCmd())
	rootCmd.AddCommand(NewDoctorCmd())

	return rootCmd
}
