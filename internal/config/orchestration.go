package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/aescanero/bago/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ProjectOverride customizes orchestration behavior for one project.
type ProjectOverride struct {
	AllowCrossProject       bool          `yaml:"allowCrossProject"`
	AllowedTargetProjectIDs []string      `yaml:"allowedTargetProjectIds"`
	CustomTimeout           time.Duration `yaml:"customTimeout"`
	MaxBatchSize            int           `yaml:"maxBatchSize"`
	WaitStrategy            string        `yaml:"waitStrategy"`
	Disabled                bool          `yaml:"disabled"`
}

// UnmarshalYAML decodes an override, accepting Go duration strings such
// as "45s" for customTimeout.
func (o *ProjectOverride) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		AllowCrossProject       bool     `yaml:"allowCrossProject"`
		AllowedTargetProjectIDs []string `yaml:"allowedTargetProjectIds"`
		CustomTimeout           string   `yaml:"customTimeout"`
		MaxBatchSize            int      `yaml:"maxBatchSize"`
		WaitStrategy            string   `yaml:"waitStrategy"`
		Disabled                bool     `yaml:"disabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	o.AllowCrossProject = raw.AllowCrossProject
	o.AllowedTargetProjectIDs = raw.AllowedTargetProjectIDs
	o.MaxBatchSize = raw.MaxBatchSize
	o.WaitStrategy = raw.WaitStrategy
	o.Disabled = raw.Disabled

	if raw.CustomTimeout != "" {
		d, err := time.ParseDuration(raw.CustomTimeout)
		if err != nil {
			return fmt.Errorf("invalid customTimeout: %w", err)
		}
		o.CustomTimeout = d
	}
	return nil
}

// AllowsTarget reports whether targetProjectID is on the explicit allow-list.
func (o ProjectOverride) AllowsTarget(targetProjectID string) bool {
	for _, id := range o.AllowedTargetProjectIDs {
		if id == targetProjectID {
			return true
		}
	}
	return false
}

// Orchestration is an immutable snapshot of the orchestration settings:
// defaults, permission policy, rate limits and per-project overrides.
// Batches capture one snapshot at start and never see a later reload.
type Orchestration struct {
	Defaults    DefaultsConfig
	Permissions PermissionsConfig
	RateLimit   RateLimitConfig
	Projects    map[string]ProjectOverride
}

// Project returns the override for a project, if any.
func (o *Orchestration) Project(projectID string) (ProjectOverride, bool) {
	p, ok := o.Projects[projectID]
	return p, ok
}

// ResolvedProjectConfig is the effective configuration for one project
// after applying its override on top of the defaults.
type ResolvedProjectConfig struct {
	ProjectID         string
	MaxBatchSize      int
	WaitStrategy      domain.WaitStrategy
	ReplyTimeout      time.Duration
	AllowCrossProject bool
	AllowedTargets    []string
	Disabled          bool
}

// Effective resolves the configuration for a project: override values win,
// defaults fill the gaps.
func (o *Orchestration) Effective(projectID string) ResolvedProjectConfig {
	resolved := ResolvedProjectConfig{
		ProjectID:    projectID,
		MaxBatchSize: o.Defaults.MaxBatchSize,
		WaitStrategy: domain.WaitStrategy(o.Defaults.WaitStrategy),
		ReplyTimeout: o.Defaults.MentionTimeout,
	}

	override, ok := o.Projects[projectID]
	if !ok {
		return resolved
	}

	resolved.AllowCrossProject = override.AllowCrossProject
	resolved.AllowedTargets = override.AllowedTargetProjectIDs
	resolved.Disabled = override.Disabled
	if override.MaxBatchSize > 0 {
		resolved.MaxBatchSize = override.MaxBatchSize
	}
	if override.CustomTimeout > 0 {
		resolved.ReplyTimeout = override.CustomTimeout
	}
	if override.WaitStrategy != "" {
		resolved.WaitStrategy = domain.WaitStrategy(override.WaitStrategy)
	}

	return resolved
}

// Store holds the current orchestration snapshot and supports explicit
// reload. Reload swaps in a fresh snapshot atomically; it never mutates
// the snapshot in place, so in-flight batches are unaffected.
type Store struct {
	cfg     *Config
	current atomic.Pointer[Orchestration]
}

// NewStore builds the initial snapshot from cfg, loading the project
// override file when configured.
func NewStore(cfg *Config) (*Store, error) {
	s := &Store{cfg: cfg}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps a fixed snapshot. Reload is a no-op; intended for
// tests and embedded use.
func NewStaticStore(o *Orchestration) *Store {
	s := &Store{}
	s.current.Store(o)
	return s
}

// Snapshot returns the current orchestration snapshot.
func (s *Store) Snapshot() *Orchestration {
	return s.current.Load()
}

// Reload re-reads the project override file and swaps in a new snapshot.
func (s *Store) Reload() error {
	if s.cfg == nil {
		return nil
	}

	projects, err := loadProjectOverrides(s.cfg.ProjectsFile)
	if err != nil {
		return err
	}

	s.current.Store(&Orchestration{
		Defaults:    s.cfg.Defaults,
		Permissions: s.cfg.Permissions,
		RateLimit:   s.cfg.RateLimit,
		Projects:    projects,
	})
	return nil
}

// loadProjectOverrides parses the YAML override file. An empty path yields
// an empty override map.
func loadProjectOverrides(path string) (map[string]ProjectOverride, error) {
	if path == "" {
		return map[string]ProjectOverride{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects file: %w", err)
	}

	var file struct {
		Projects map[string]ProjectOverride `yaml:"projects"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse projects file: %w", err)
	}

	for id, override := range file.Projects {
		switch override.WaitStrategy {
		case "", "all", "any", "none":
		default:
			return nil, fmt.Errorf("project %s: invalid wait strategy %q", id, override.WaitStrategy)
		}
	}

	if file.Projects == nil {
		file.Projects = map[string]ProjectOverride{}
	}
	return file.Projects, nil
}
