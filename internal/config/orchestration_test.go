package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aescanero/bago/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEffective_DefaultsWithoutOverride(t *testing.T) {
	o := &Orchestration{
		Defaults: DefaultsConfig{
			MentionTimeout: 30 * time.Second,
			MaxBatchSize:   100,
			WaitStrategy:   "all",
		},
	}

	resolved := o.Effective("proj-a")
	assert.Equal(t, "proj-a", resolved.ProjectID)
	assert.Equal(t, 100, resolved.MaxBatchSize)
	assert.Equal(t, domain.WaitAll, resolved.WaitStrategy)
	assert.Equal(t, 30*time.Second, resolved.ReplyTimeout)
	assert.False(t, resolved.AllowCrossProject)
	assert.False(t, resolved.Disabled)
}

func TestEffective_OverrideWins(t *testing.T) {
	o := &Orchestration{
		Defaults: DefaultsConfig{
			MentionTimeout: 30 * time.Second,
			MaxBatchSize:   100,
			WaitStrategy:   "all",
		},
		Projects: map[string]ProjectOverride{
			"proj-a": {
				AllowCrossProject:       true,
				AllowedTargetProjectIDs: []string{"proj-b"},
				CustomTimeout:           45 * time.Second,
				MaxBatchSize:            10,
				WaitStrategy:            "any",
			},
		},
	}

	resolved := o.Effective("proj-a")
	assert.Equal(t, 10, resolved.MaxBatchSize)
	assert.Equal(t, domain.WaitAny, resolved.WaitStrategy)
	assert.Equal(t, 45*time.Second, resolved.ReplyTimeout)
	assert.True(t, resolved.AllowCrossProject)
	assert.Equal(t, []string{"proj-b"}, resolved.AllowedTargets)
}

func TestEffective_ZeroOverrideFieldsKeepDefaults(t *testing.T) {
	o := &Orchestration{
		Defaults: DefaultsConfig{
			MentionTimeout: 30 * time.Second,
			MaxBatchSize:   100,
			WaitStrategy:   "all",
		},
		Projects: map[string]ProjectOverride{
			"proj-a": {Disabled: true},
		},
	}

	resolved := o.Effective("proj-a")
	assert.True(t, resolved.Disabled)
	assert.Equal(t, 100, resolved.MaxBatchSize)
	assert.Equal(t, domain.WaitAll, resolved.WaitStrategy)
	assert.Equal(t, 30*time.Second, resolved.ReplyTimeout)
}

func TestStore_ReloadSwapsSnapshot(t *testing.T) {
	path := writeProjectsFile(t, `
projects:
  proj-a:
    allowCrossProject: true
    allowedTargetProjectIds:
      - proj-b
      - proj-c
    customTimeout: 45s
    maxBatchSize: 10
    waitStrategy: any
`)

	cfg := &Config{
		ProjectsFile: path,
		Defaults: DefaultsConfig{
			MentionTimeout: 30 * time.Second,
			MaxBatchSize:   100,
			WaitStrategy:   "all",
		},
	}

	store, err := NewStore(cfg)
	require.NoError(t, err)

	first := store.Snapshot()
	override, ok := first.Project("proj-a")
	require.True(t, ok)
	assert.True(t, override.AllowCrossProject)
	assert.Equal(t, 45*time.Second, override.CustomTimeout)
	assert.True(t, override.AllowsTarget("proj-c"))
	assert.False(t, override.AllowsTarget("proj-x"))

	// Rewrite the file and reload: the old snapshot must stay intact.
	require.NoError(t, os.WriteFile(path, []byte(`
projects:
  proj-a:
    disabled: true
`), 0o644))
	require.NoError(t, store.Reload())

	second := store.Snapshot()
	assert.True(t, second.Effective("proj-a").Disabled)
	assert.False(t, first.Effective("proj-a").Disabled)
}

func TestStore_ReloadRejectsInvalidStrategy(t *testing.T) {
	path := writeProjectsFile(t, `
projects:
  proj-a:
    waitStrategy: sometimes
`)

	_, err := NewStore(&Config{ProjectsFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid wait strategy")
}

func TestStore_MissingProjectsFileIsEmpty(t *testing.T) {
	store, err := NewStore(&Config{})
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot().Projects)
}

func TestStaticStore(t *testing.T) {
	o := &Orchestration{Defaults: DefaultsConfig{MaxBatchSize: 5}}
	store := NewStaticStore(o)

	assert.Same(t, o, store.Snapshot())
	require.NoError(t, store.Reload())
	assert.Same(t, o, store.Snapshot())
}
