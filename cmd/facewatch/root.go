package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facewatch",
	Short: "Camera face detection with edge-triggered events",
	Long: `facewatch reads frames from a camera, detects faces and their features
(smile, open or closed eyes, head angle) and publishes an event whenever
one of them changes. Events are available over HTTP, a websocket stream,
a system tray icon and user-defined hook commands.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (or FACEWATCH_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("FACEWATCH_CONFIG")
	}
}
