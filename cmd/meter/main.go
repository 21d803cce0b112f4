package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meter",
	Short: "Transparent token and cost metering proxy for ChatGPT traffic",
	Long: "A reverse proxy that sits between chat clients and the ChatGPT backend, " +
		"passing streamed responses through untouched while estimating token usage " +
		"and cost per exchange and maintaining per-tab session aggregates.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
