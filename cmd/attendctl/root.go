package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/attendsense/pkg/client"
)

var (
	serverURL  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Operate an AttendSense fog node",
	Long: `attendctl talks to an AttendSense fog node. It lists the presence roster
and device health, exports attendance workbooks, runs database migrations and
can act as an edge camera by sending sightings and heartbeats over HTTP or MQTT.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "fog node base URL (default $ATTEND_API_URL or http://localhost:5000)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file, for commands that connect directly")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if serverURL == "" {
		serverURL = os.Getenv("ATTEND_API_URL")
	}
	if serverURL == "" {
		serverURL = "http://localhost:5000"
	}
}

func apiClient() *client.Client {
	return client.New(serverURL)
}
