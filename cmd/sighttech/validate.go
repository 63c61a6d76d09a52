package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/VietHungUET/SightTech/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a VoiceRuntime manifest",
	Long: `Validates a manifest against the embedded JSON schema and then checks the
decoded settings, including SIGHTTECH_* environment overrides.

Examples:
  sighttech validate sighttech.yaml
  sighttech validate sighttech.yaml --schema-only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var validateSchemaOnly bool

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateSchemaOnly, "schema-only", false, "Only validate schema, skip settings checks")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("file path required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	out := cmd.OutOrStdout()
	result, err := config.ValidateWithSchema(data)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid {
		fmt.Fprintf(out, "Schema validation failed for %s:\n", path)
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e.Error())
		}
		return fmt.Errorf("schema validation failed with %d error(s)", len(result.Errors))
	}

	if !validateSchemaOnly {
		if _, err := config.Load(path); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s is valid\n", filepath.Base(path))
	return nil
}
