package config

import (
	"fmt"
	"os"
	"sort"

	yaml "gopkg.in/yaml.v3"

	"github.com/BuckanovNikita/cveta2/internal/paths"
)

// IgnoredTask is one entry of a project's ignore list.
type IgnoredTask struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// IgnoreConfig maps project names to the tasks excluded from fetching.
type IgnoreConfig struct {
	Projects map[string][]IgnoredTask `yaml:"projects"`
}

// LoadIgnore reads ignore.yaml from configDir. A missing file yields an
// empty config.
func LoadIgnore(configDir string) (IgnoreConfig, error) {
	cfg := IgnoreConfig{Projects: map[string][]IgnoredTask{}}
	data, err := os.ReadFile(paths.IgnoreFile(configDir))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading ignore config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing ignore config: %w", err)
	}
	if cfg.Projects == nil {
		cfg.Projects = map[string][]IgnoredTask{}
	}
	return cfg, nil
}

// SaveIgnore writes ignore.yaml to configDir.
func SaveIgnore(configDir string, cfg IgnoreConfig) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal ignore config: %w", err)
	}
	if err := os.WriteFile(paths.IgnoreFile(configDir), data, 0o644); err != nil {
		return fmt.Errorf("write ignore config: %w", err)
	}
	return nil
}

// IgnoredIDs returns the set of ignored task ids for a project.
func (c IgnoreConfig) IgnoredIDs(project string) map[int]struct{} {
	ids := make(map[int]struct{})
	for _, t := range c.Projects[project] {
		ids[t.ID] = struct{}{}
	}
	return ids
}

// Add records a task in a project's ignore list. Adding an already
// ignored id updates its name. Reports whether the entry was new.
func (c *IgnoreConfig) Add(project string, task IgnoredTask) bool {
	for i, t := range c.Projects[project] {
		if t.ID == task.ID {
			c.Projects[project][i].Name = task.Name
			return false
		}
	}
	c.Projects[project] = append(c.Projects[project], task)
	sort.Slice(c.Projects[project], func(i, j int) bool {
		return c.Projects[project][i].ID < c.Projects[project][j].ID
	})
	return true
}

// Remove drops a task id from a project's ignore list. Reports whether
// the entry existed. Projects left empty are removed from the map.
func (c *IgnoreConfig) Remove(project string, taskID int) bool {
	entries := c.Projects[project]
	for i, t := range entries {
		if t.ID == taskID {
			c.Projects[project] = append(entries[:i], entries[i+1:]...)
			if len(c.Projects[project]) == 0 {
				delete(c.Projects, project)
			}
			return true
		}
	}
	return false
}
