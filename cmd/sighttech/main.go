package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/VietHungUET/SightTech/logger"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:           "sighttech",
	Short:         "SightTech - voice-driven assistant runtime for blind and low-vision users",
	Version:       GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `SightTech runs the voice turn-taking loop of the assistant: it listens for a
spoken command, interprets it, speaks the answer, and streams camera frames to
the scene analysis service when a streaming feature is active.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFiles(envFiles); err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return nil
			}
			logger.SetVerbose(verbose)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a VoiceRuntime manifest")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Additional .env files to load")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// loadEnvFiles loads .env from the working directory and ~/.sighttech.env
// when present, then every explicitly named file, which must exist.
// Variables already set in the environment win.
func loadEnvFiles(explicit []string) error {
	defaults := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		defaults = append(defaults, filepath.Join(home, ".sighttech.env"))
	}
	for _, path := range defaults {
		_ = godotenv.Load(path)
	}
	for _, path := range explicit {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// setupVersion configures the version display
func setupVersion() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
}

func Execute() {
	setupVersion()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
