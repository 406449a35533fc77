package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"projd/internal/engine"
	"projd/internal/manifest"
	"projd/internal/project"
	"projd/internal/service"
)

var (
	projectsFormat   string
	projectsManifest string
)

var projectsCmd = &cobra.Command{
	Use:   "projects <file...>",
	Short: "Show the projects that service the given files",
	Long: `Open the given files as an editor would and print the resulting
projects: configured projects found by config search, inferred projects
for files without a usable config, and external projects from a manifest.

Examples:
  projd projects src/index.ts
  projd projects src/a.ts test/b.ts --format json
  projd projects src/a.ts --manifest projects.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProjects,
}

func init() {
	projectsCmd.Flags().StringVar(&projectsFormat, "format", "human", "Output format (json, human)")
	projectsCmd.Flags().StringVar(&projectsManifest, "manifest", "", "Open the external projects listed in this manifest first")
	rootCmd.AddCommand(projectsCmd)
}

// ProjectsResponse is the output of the projects command.
type ProjectsResponse struct {
	Files    []FileEntry           `json:"files"`
	Projects []service.ProjectInfo `json:"projects"`
}

// FileEntry reports how one opened file is serviced.
type FileEntry struct {
	File             string              `json:"file"`
	ConfigFileName   string              `json:"configFileName,omitempty"`
	ConfigFileErrors []engine.Diagnostic `json:"configFileErrors"`
	Projects         []project.Ref       `json:"projects"`
}

func runProjects(cmd *cobra.Command, args []string) error {
	if projectsFormat != "json" && projectsFormat != "human" {
		return fmt.Errorf("unsupported format: %s", projectsFormat)
	}
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
	svc := service.New(service.Options{
		FS:      fs,
		Logger:  logger,
		LibFile: cfg.LibFile,
		LazyConfiguredProjectsFromExternalProject: cfg.LazyConfiguredProjectsFromExternalProject,
	})
	defer svc.Close()

	ctx := cmd.Context()
	if projectsManifest != "" {
		m, err := manifest.Load(fs, absPath(projectsManifest))
		if err != nil {
			return err
		}
		if err := svc.OpenExternalProjects(ctx, m.Descriptors()); err != nil {
			return err
		}
	}

	resp := ProjectsResponse{}
	files := absPaths(args)
	opened := make([]*service.OpenResult, len(files))
	for i, f := range files {
		res, err := svc.OpenClientFile(ctx, f)
		if err != nil {
			return err
		}
		opened[i] = res
	}
	svc.Drain()

	for i, f := range files {
		resp.Files = append(resp.Files, FileEntry{
			File:             f,
			ConfigFileName:   opened[i].ConfigFileName,
			ConfigFileErrors: opened[i].ConfigFileErrors,
			Projects:         svc.GetProjectsForFile(f),
		})
	}
	for _, group := range [][]*project.Project{svc.ConfiguredProjects(), svc.ExternalProjects(), svc.InferredProjects()} {
		for _, p := range group {
			resp.Projects = append(resp.Projects, service.Describe(p))
		}
	}

	if projectsFormat == "json" {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	writeProjectsHuman(cmd.OutOrStdout(), &resp)
	return nil
}

func writeProjectsHuman(w io.Writer, resp *ProjectsResponse) {
	fmt.Fprintln(w, "Files")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, f := range resp.Files {
		owner := "(none)"
		if len(f.Projects) > 0 {
			owner = f.Projects[0].Name
		}
		fmt.Fprintf(w, "  %s\n    → %s\n", f.File, owner)
		for _, d := range f.ConfigFileErrors {
			fmt.Fprintf(w, "    ! %s\n", d.String())
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Projects")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, p := range resp.Projects {
		fmt.Fprintf(w, "  [%s] %s\n", p.Kind, p.Name)
		fmt.Fprintf(w, "    roots: %d  files: %d\n", len(p.RootFiles), len(p.ActualFiles))
	}
}
