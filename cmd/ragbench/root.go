package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "ragbench",
	Short:   "Run and evaluate RAG techniques against a shared corpus",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ~/.config/ragbench/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(sessionCmd)
}
