package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// LoadFile reads entity definitions from a JSON file. The file holds
// either one definition object or an array of them; every definition
// is validated before any is returned.
func LoadFile(path string) ([]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading entity file: %w", err)
	}
	configs, err := parseConfigs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return configs, nil
}

// LoadDir reads every .json file in dir, in name order, and returns
// the combined definitions. Subdirectories are not descended into.
func LoadDir(dir string) ([]*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading entity dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var configs []*Config
	for _, name := range names {
		batch, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		configs = append(configs, batch...)
	}
	return configs, nil
}

// LoadDirInto loads a directory of definitions and swaps them into the
// registry atomically, so a watcher-triggered reload either fully
// applies or leaves the registry unchanged.
func LoadDirInto(reg *Registry, dir string) error {
	configs, err := LoadDir(dir)
	if err != nil {
		return err
	}
	return reg.Replace(configs)
}

func parseConfigs(data []byte) ([]*Config, error) {
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	var configs []*Config
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &configs); err != nil {
			return nil, fmt.Errorf("unmarshalling entity definitions: %w", err)
		}
	} else {
		var one Config
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("unmarshalling entity definition: %w", err)
		}
		configs = []*Config{&one}
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return configs, nil
}
