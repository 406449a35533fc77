// Package manifest reads external project descriptors from TOML, YAML or
// JSON files. Root file paths are resolved against the manifest's
// directory.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/paths"
	"projd/internal/service"
	"projd/internal/vfs"
)

// Manifest is a list of external projects.
type Manifest struct {
	Projects []Project `toml:"projects" yaml:"projects" json:"projects"`
}

// Project declares one external project.
type Project struct {
	ProjectFileName string   `toml:"projectFileName" yaml:"projectFileName" json:"projectFileName"`
	RootFiles       []string `toml:"rootFiles" yaml:"rootFiles" json:"rootFiles"`
	Options         Options  `toml:"options" yaml:"options" json:"options"`
}

// Options is the subset of compiler options a manifest may set.
type Options struct {
	OutDir         string   `toml:"outDir" yaml:"outDir" json:"outDir"`
	OutFile        string   `toml:"outFile" yaml:"outFile" json:"outFile"`
	RootDir        string   `toml:"rootDir" yaml:"rootDir" json:"rootDir"`
	DeclarationDir string   `toml:"declarationDir" yaml:"declarationDir" json:"declarationDir"`
	Composite      bool     `toml:"composite" yaml:"composite" json:"composite"`
	Declaration    bool     `toml:"declaration" yaml:"declaration" json:"declaration"`
	DeclarationMap bool     `toml:"declarationMap" yaml:"declarationMap" json:"declarationMap"`
	NoLib          bool     `toml:"noLib" yaml:"noLib" json:"noLib"`
	AllowJs        bool     `toml:"allowJs" yaml:"allowJs" json:"allowJs"`
	NoEmit         bool     `toml:"noEmit" yaml:"noEmit" json:"noEmit"`
	Types          []string `toml:"types" yaml:"types" json:"types"`
}

// Format is a manifest encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(paths.Ext(path)) {
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json", ".jsonc":
		return FormatJSON, true
	}
	return "", false
}

// Parse decodes a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatJSON:
		err = json.Unmarshal(jsonc.ToJSON(data), &m)
	default:
		return nil, errors.NewInvalidRequest("format", fmt.Sprintf("unsupported manifest format %q", format))
	}
	if err != nil {
		return nil, errors.New(errors.InvalidRequest, fmt.Sprintf("cannot decode %s manifest", format), err)
	}
	for i, p := range m.Projects {
		if p.ProjectFileName == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("projects[%d].projectFileName", i), "is required")
		}
	}
	return &m, nil
}

// Load reads and decodes the manifest at path, resolving project names
// and root files against its directory.
func Load(fs *vfs.FS, path string) (*Manifest, error) {
	path = paths.Normalize(path)
	format, ok := FormatOf(path)
	if !ok {
		return nil, errors.NewInvalidRequest("manifest", fmt.Sprintf("%s: unknown extension", path))
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InvalidRequest, "cannot read manifest "+path, err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	m.resolve(paths.Dir(path))
	return m, nil
}

func (m *Manifest) resolve(dir string) {
	for i := range m.Projects {
		p := &m.Projects[i]
		p.ProjectFileName = paths.Resolve(dir, p.ProjectFileName)
		for j, r := range p.RootFiles {
			p.RootFiles[j] = paths.Resolve(dir, r)
		}
	}
}

// Descriptors converts the manifest for Service.OpenExternalProjects.
func (m *Manifest) Descriptors() []service.ExternalDescriptor {
	out := make([]service.ExternalDescriptor, 0, len(m.Projects))
	for _, p := range m.Projects {
		out = append(out, service.ExternalDescriptor{
			ProjectFileName: p.ProjectFileName,
			RootFiles:       append([]string(nil), p.RootFiles...),
			Options:         p.Options.compilerOptions(),
		})
	}
	return out
}

func (o Options) compilerOptions() engine.CompilerOptions {
	return engine.CompilerOptions{
		OutDir:         o.OutDir,
		OutFile:        o.OutFile,
		RootDir:        o.RootDir,
		DeclarationDir: o.DeclarationDir,
		Composite:      o.Composite,
		Declaration:    o.Declaration,
		DeclarationMap: o.DeclarationMap,
		NoLib:          o.NoLib,
		AllowJs:        o.AllowJs,
		NoEmit:         o.NoEmit,
		Types:          o.Types,
		HasTypes:       o.Types != nil,
	}
}
