package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"projd/internal/build"
	"projd/internal/buildstate"
	"projd/internal/engine"
	"projd/internal/storage"
)

// errBuildFailed is returned after the build reporter has printed the
// errors, so main only sets the exit code.
var errBuildFailed = errors.New("build failed")

var (
	buildForce   bool
	buildVerbose bool
	buildDry     bool
	buildState   bool
)

var buildCmd = &cobra.Command{
	Use:   "build <config...>",
	Short: "Build projects and their references",
	Long: `Build each config and every project it references, dependencies first.
Up-to-date projects are skipped. Errors are printed per project and make
the command exit with status 1.

Examples:
  projd build tsconfig.json
  projd build src/tsconfig.json test/tsconfig.json --verbose
  projd build tsconfig.json --dry
  projd build tsconfig.json --state   # keep fingerprints in .projd/build.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "Build every project even when up to date")
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Report the status of every project")
	buildCmd.Flags().BoolVar(&buildDry, "dry", false, "Report what would be built without writing outputs")
	buildCmd.Flags().BoolVar(&buildState, "state", false, "Persist build fingerprints under .projd/")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
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
	var state *buildstate.Store
	if buildState {
		db, err := storage.Open(rootDir, logger)
		if err != nil {
			return fmt.Errorf("open build state: %w", err)
		}
		defer db.Close()
		state = buildstate.New(db, fs, logger)
	}

	b, err := build.New(build.Config{
		FS:       fs,
		Engine:   engine.NewLite(fs, logger),
		State:    state,
		LibFile:  cfg.LibFile,
		Reporter: cmd.OutOrStdout(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if state == nil {
		defer b.State().Close()
	}

	res, err := b.Build(cmd.Context(), absPaths(args), build.Options{
		Force:   buildForce,
		Verbose: buildVerbose,
		DryRun:  buildDry,
	})
	if err != nil {
		return err
	}
	if res.Failed() {
		return errBuildFailed
	}
	return nil
}
