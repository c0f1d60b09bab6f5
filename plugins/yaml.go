package plugins

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
)

// DefinitionFile is a module definition together with the file under
// .loom/modules it was loaded from. Discovery uses the path to report
// duplicate module ids across plugin files.
type DefinitionFile struct {
	Definition ModuleDefinition
	Path       string
}

// ParseDefinitionYAML decodes one template module declaration, validates it,
// and returns the normalized form.
func ParseDefinitionYAML(data []byte) (ModuleDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ModuleDefinition{}, fmt.Errorf("plugin: module definition is empty")
	}
	var def ModuleDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ModuleDefinition{}, fmt.Errorf("plugin: decode module definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return ModuleDefinition{}, err
	}
	return def.Normalized(), nil
}

// LoadDefinitionFile reads a single module declaration from disk.
func LoadDefinitionFile(path string) (DefinitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: read module %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: %s: %w", path, err)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir loads every .yaml/.yml module declaration under the
// project's plugin directory, sorted by path so registration order is stable
// across runs. A project without a modules directory simply has no YAML
// plugins; that is not an error.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plugin: read module dir %s: %w", dir, err)
	}
	var files []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !hasYAMLExt(entry.Name()) {
			continue
		}
		file, err := LoadDefinitionFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func hasYAMLExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
