// Package definition loads workflow definitions from YAML files.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

// DefaultDir is the conventional location of workflow definitions.
const DefaultDir = "workflows"

// ErrNotFound is returned when no definition file exists for a name.
var ErrNotFound = errors.New("workflow definition not found")

var extensions = []string{".yaml", ".yml"}

var _ ports.DefinitionLoader = (*Loader)(nil)

// Loader resolves a workflow name to <Dir>/<name>.yaml (or .yml). Files are
// read on every call so edits take effect for the next run.
type Loader struct {
	Dir string
}

func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = DefaultDir
	}
	return &Loader{Dir: dir}
}

// Load reads and validates the named definition.
func (l *Loader) Load(name string) (*zaps.WorkflowDefinition, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	for _, ext := range extensions {
		path := filepath.Join(l.Dir, name+ext)
		wf, err := LoadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if wf.Name == "" {
			wf.Name = name
		}
		return wf, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the names of all definitions in Dir, sorted.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}
	seen := make(map[string]bool)
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: invalid workflow name %q", ErrNotFound, name)
	}
	return nil
}

// LoadFile reads a definition from an explicit path. A missing file yields
// an error wrapping fs.ErrNotExist.
func LoadFile(path string) (*zaps.WorkflowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	wf, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Parse decodes and validates a definition from YAML (or JSON) bytes.
func Parse(data []byte) (*zaps.WorkflowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("definition is empty")
	}
	var wf zaps.WorkflowDefinition
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	// The name may come from the file name instead; validate the rest.
	check := wf
	if check.Name == "" {
		check.Name = "unnamed"
	}
	if err := Validate(&check); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks a definition's structure and compiles its step conditions.
func Validate(wf *zaps.WorkflowDefinition) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	for i, step := range wf.Steps {
		if step.When == "" {
			continue
		}
		if _, err := compileCondition(step.When, nil); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
