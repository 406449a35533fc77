package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projd/internal/config"
	"projd/internal/paths"
	"projd/internal/slogutil"
	"projd/internal/version"
	"projd/internal/vfs"
)

const (
	logMaxSize    = 10 << 20
	logMaxBackups = 3
)

var (
	// rootDir is the workspace whose .projd/ holds settings and build state
	rootDir  string
	logLevel string
	libFile  string
)

var rootCmd = &cobra.Command{
	Use:   "projd",
	Short: "projd - project service and reference builder",
	Long: `projd tracks which project owns each open source file, keeps those
projects current as configs and files change, and builds solutions of
referenced projects in dependency order.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("projd version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Workspace root holding .projd/")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&libFile, "lib", "", "Default library declaration file")
}

// loadSettings resolves the effective configuration: defaults, then
// .projd/config.*, then PROJD_* variables, then flags set on cmd.
func loadSettings(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	v := config.New(rootDir)
	bind := map[string]string{
		"logging.level": "log-level",
		"libFile":       "lib",
	}
	for key, flag := range bindings {
		bind[key] = flag
	}
	for key, flag := range bind {
		if err := bindFlag(v, cmd, key, flag); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if cfg.LibFile != "" {
		cfg.LibFile = absPath(cfg.LibFile)
	}
	return cfg, nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) error {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		return nil
	}
	if err := v.BindPFlag(key, f); err != nil {
		return fmt.Errorf("bind --%s: %w", flag, err)
	}
	return nil
}

// newLogger creates the command logger on w, teeing to a rotating logFile
// when set. The returned func closes the log file.
func newLogger(cfg *config.Config, w io.Writer, logFile string) (*slog.Logger, func(), error) {
	logger, closer, err := slogutil.Setup(w, slogutil.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       logFile,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackups,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logger, func() { _ = closer.Close() }, nil
}

// hostFS returns the OS file system with the configured case policy.
func hostFS(cfg *config.Config) *vfs.FS {
	return vfs.NewOS(cfg.UseCaseSensitiveFileNames)
}

// absPath makes a command line path absolute in slash form.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return paths.Normalize(filepath.ToSlash(p))
}

func absPaths(ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = absPath(p)
	}
	return out
}
