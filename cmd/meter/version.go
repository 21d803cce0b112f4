package main

import (
	"fmt"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the meter version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meter %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
