package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/VietHungUET/SightTech/config"
	"github.com/VietHungUET/SightTech/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the voice turn-taking loop",
	Long: `Starts the turn-taking coordinator and, when enabled, the streaming session
manager and metrics exporter. Console commands are read from stdin; type
"help" for the list.

Examples:
  sighttech run --config sighttech.yaml
  sighttech run --start --feature Distance`,
	RunE: runRun,
}

var (
	runAutoStart bool
	runFeature   string
	runNoConsole bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runAutoStart, "start", false, "Start listening immediately")
	runCmd.Flags().StringVar(&runFeature, "feature", "", "Initial feature")
	runCmd.Flags().BoolVar(&runNoConsole, "no-console", false, "Do not read commands from stdin")
}

// loadManifest loads the configured manifest, or the defaults with
// environment overrides when no file is given.
func loadManifest(path string) (*config.Manifest, error) {
	if path != "" {
		return config.Load(path)
	}
	m := config.Default()
	if err := m.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return m, m.Validate()
}

func runRun(cmd *cobra.Command, _ []string) error {
	m, err := loadManifest(configPath)
	if err != nil {
		return err
	}
	if runAutoStart {
		m.Spec.Turn.AutoStart = true
	}
	if runFeature != "" {
		m.Spec.Interpret.Feature = runFeature
	}

	if !cmd.Flags().Changed("verbose") {
		if err := logger.Configure(loggingSpec(m.Spec.Logging)); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := openDevices(m.Spec.Audio)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, m, dev, cmd.OutOrStdout())
	if err != nil {
		_ = dev.close()
		return err
	}

	in := cmd.InOrStdin()
	if runNoConsole {
		in = nil
	} else if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(cmd.OutOrStdout(), `Type "help" for console commands.`)
	}
	if err := a.run(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loggingSpec(s config.LoggingSpec) *logger.LoggingConfigSpec {
	spec := &logger.LoggingConfigSpec{
		DefaultLevel: s.DefaultLevel,
		Format:       s.Format,
		CommonFields: s.CommonFields,
	}
	for _, mod := range s.Modules {
		spec.Modules = append(spec.Modules, logger.ModuleLoggingSpec{Name: mod.Name, Level: mod.Level})
	}
	return spec
}
