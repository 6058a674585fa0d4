package permissions

import (
	"testing"

	"github.com/aescanero/bago/internal/config"
	"github.com/stretchr/testify/assert"
)

func snapshot(mode config.CrossProjectMode, projects map[string]config.ProjectOverride) *config.Orchestration {
	return &config.Orchestration{
		Permissions: config.PermissionsConfig{CrossProjectMode: mode},
		Projects:    projects,
	}
}

func TestCanDeliver(t *testing.T) {
	explicitProjects := map[string]config.ProjectOverride{
		"proj-a": {
			AllowCrossProject:       true,
			AllowedTargetProjectIDs: []string{"proj-b"},
		},
		"proj-c": {
			AllowCrossProject: false,
		},
	}

	tests := []struct {
		name    string
		cfg     *config.Orchestration
		source  string
		target  string
		allowed bool
	}{
		{
			name:    "same project always allowed",
			cfg:     snapshot(config.CrossProjectNone, nil),
			source:  "proj-a",
			target:  "proj-a",
			allowed: true,
		},
		{
			name:    "mode all allows cross project",
			cfg:     snapshot(config.CrossProjectAll, nil),
			source:  "proj-a",
			target:  "proj-b",
			allowed: true,
		},
		{
			name:    "mode none denies cross project",
			cfg:     snapshot(config.CrossProjectNone, nil),
			source:  "proj-a",
			target:  "proj-b",
			allowed: false,
		},
		{
			name:    "explicit with listed target",
			cfg:     snapshot(config.CrossProjectExplicit, explicitProjects),
			source:  "proj-a",
			target:  "proj-b",
			allowed: true,
		},
		{
			name:    "explicit with unlisted target",
			cfg:     snapshot(config.CrossProjectExplicit, explicitProjects),
			source:  "proj-a",
			target:  "proj-x",
			allowed: false,
		},
		{
			name:    "explicit without cross project opt-in",
			cfg:     snapshot(config.CrossProjectExplicit, explicitProjects),
			source:  "proj-c",
			target:  "proj-b",
			allowed: false,
		},
		{
			name:    "explicit without override",
			cfg:     snapshot(config.CrossProjectExplicit, explicitProjects),
			source:  "proj-z",
			target:  "proj-b",
			allowed: false,
		},
		{
			name:    "unknown mode denies",
			cfg:     snapshot(config.CrossProjectMode("bogus"), nil),
			source:  "proj-a",
			target:  "proj-b",
			allowed: false,
		},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, r.CanDeliver(tt.cfg, tt.source, tt.target))
		})
	}
}
