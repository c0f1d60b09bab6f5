package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/loom/internal/module"
)

const goRunnerFuncName = "ModuleRunners"

// RunnerFile pairs an interpreted runner with its on-disk source.
type RunnerFile struct {
	ID     string
	Runner module.Runner
	Path   string
}

// LoadGoRunnerDir evaluates every .go file in dir and collects runners
// declared via ModuleRunners(). Each file must define
//
//	func ModuleRunners() map[string]func(map[string]any) (map[string]any, error)
//
// where the map key is the module id and the function receives a snapshot of
// the execution context and returns the updates to merge.
func LoadGoRunnerDir(dir string) ([]RunnerFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var runners []RunnerFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		fileRunners, err := loadGoRunnerFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		runners = append(runners, fileRunners...)
	}
	if len(runners) == 0 {
		return nil, nil
	}
	sort.Slice(runners, func(i, j int) bool {
		if runners[i].Path == runners[j].Path {
			return runners[i].ID < runners[j].ID
		}
		return runners[i].Path < runners[j].Path
	})
	return runners, nil
}

func loadGoRunnerFile(path string) ([]RunnerFile, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: interpreter setup for %s: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goRunnerFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s(): %w", path, goRunnerFuncName, err)
	}
	funcs, callErr := invokeRunnerFunc(fnValue)
	if callErr != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, callErr)
	}
	files := make([]RunnerFile, 0, len(funcs))
	for id, fn := range funcs {
		trimmedID := strings.TrimSpace(id)
		if trimmedID == "" {
			return nil, fmt.Errorf("plugin: %s declares a runner with an empty id", path)
		}
		files = append(files, RunnerFile{
			ID:     trimmedID,
			Runner: wrapInterpretedRunner(trimmedID, fn),
			Path:   path,
		})
	}
	return files, nil
}

func invokeRunnerFunc(value reflect.Value) (map[string]func(map[string]any) (map[string]any, error), error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goRunnerFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goRunnerFuncName)
	}
	results := value.Call(nil)
	if len(results) != 1 {
		return nil, fmt.Errorf("%s must return map[string]func(map[string]any) (map[string]any, error)", goRunnerFuncName)
	}
	funcs, ok := results[0].Interface().(map[string]func(map[string]any) (map[string]any, error))
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]func(map[string]any) (map[string]any, error)", goRunnerFuncName)
	}
	return funcs, nil
}

func wrapInterpretedRunner(id string, fn func(map[string]any) (map[string]any, error)) module.Runner {
	return module.RunnerFunc(func(ctx context.Context, ec *module.Context) (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		updates, err := fn(ec.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", id, err)
		}
		return updates, nil
	})
}
