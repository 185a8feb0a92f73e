package cmd

import (
	"os"

	"memdev/logx"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "memdev",
	Short: "memdev in-memory block device CLI",
	Long:  "Command line interface for running and managing memdev, an in-memory lazily allocated block device.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
