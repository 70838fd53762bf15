package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownLanguage is returned by Lookup when no profile matches an alias
var ErrUnknownLanguage = errors.New("unknown language")

// Profile describes how to run one language
type Profile struct {
	Name      string   `yaml:"name"`
	Aliases   []string `yaml:"aliases"`
	Extension string   `yaml:"extension"`
	Path      string   `yaml:"path"`
	Run       Command  `yaml:"run"`
	Compile   *Command `yaml:"compile"`
	Image     string   `yaml:"image"`
}

// ResolvePath returns the in-container path of the given source file
func (p Profile) ResolvePath(file string) string {
	return strings.ReplaceAll(p.Path, FilePlaceholder, file)
}

// FileName returns the source file name for a container
func (p Profile) FileName(base string) string {
	if p.Extension == "" {
		return base
	}
	return base + "." + p.Extension
}

// HasCompileStep reports whether the profile declares a compile command
func (p Profile) HasCompileStep() bool {
	return p.Compile != nil && !p.Compile.Empty()
}

func (p Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("language name is required")
	}
	if p.Image == "" {
		return fmt.Errorf("language %s: image is required", p.Name)
	}
	if p.Path == "" {
		return fmt.Errorf("language %s: path is required", p.Name)
	}
	if p.Run.Empty() {
		return fmt.Errorf("language %s: run command is required", p.Name)
	}
	return nil
}

// Catalog holds the execution profiles and resolves aliases to them
type Catalog struct {
	profiles []Profile
	byAlias  map[string]int
}

type catalogFile struct {
	Languages []Profile `yaml:"languages"`
}

// New builds a catalog from profiles. Profile names count as aliases.
func New(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{
		profiles: make([]Profile, 0, len(profiles)),
		byAlias:  make(map[string]int),
	}

	for _, profile := range profiles {
		if err := profile.validate(); err != nil {
			return nil, err
		}
		if profile.Compile != nil && profile.Compile.Empty() {
			profile.Compile = nil
		}

		idx := len(c.profiles)
		c.profiles = append(c.profiles, profile)

		names := append([]string{profile.Name}, profile.Aliases...)
		for _, alias := range names {
			if prev, ok := c.byAlias[alias]; ok && prev != idx {
				return nil, fmt.Errorf("alias %q used by both %s and %s", alias, c.profiles[prev].Name, profile.Name)
			}
			c.byAlias[alias] = idx
		}
	}

	return c, nil
}

// Load reads a YAML catalog file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read language catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse language catalog: %w", err)
	}
	if len(file.Languages) == 0 {
		return nil, fmt.Errorf("language catalog is empty")
	}
	return New(file.Languages...)
}

// Lookup returns the profile matching the alias
func (c *Catalog) Lookup(alias string) (Profile, error) {
	idx, ok := c.byAlias[alias]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, alias)
	}
	return c.profiles[idx], nil
}

// Profiles returns every profile in catalog order
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Aliases returns every accepted alias, sorted
func (c *Catalog) Aliases() []string {
	out := make([]string, 0, len(c.byAlias))
	for alias := range c.byAlias {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
