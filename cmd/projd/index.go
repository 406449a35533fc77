package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"projd/internal/engine"
	"projd/internal/scipexport"
)

var indexOutput string

var indexCmd = &cobra.Command{
	Use:   "index <config>",
	Short: "Export a project's declarations as a SCIP index",
	Long: `Load the project of a config file and write the declarations and
same-file references of its root files as a SCIP index. An output name
ending in .zst is written zstd-compressed.

Examples:
  projd index tsconfig.json
  projd index packages/core/tsconfig.json -o core.scip
  projd index tsconfig.json -o index.scip.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexOutput, "output", "o", "index.scip", "Output file")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd, nil)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), "")
	if err != nil {
		return err
	}
	defer closeLog()

	fs := hostFS(cfg)
	exporter := scipexport.New(fs, engine.NewLite(fs, logger), nil, cfg.LibFile, logger)
	idx, err := exporter.IndexProject(cmd.Context(), absPath(args[0]))
	if err != nil {
		return err
	}
	out := absPath(indexOutput)
	if err := scipexport.WriteFile(fs, out, idx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d documents to %s\n", len(idx.Documents), out)
	return nil
}
