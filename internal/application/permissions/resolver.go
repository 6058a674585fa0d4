// Package permissions evaluates whether a message may cross from one
// project's boundary into another's.
package permissions

import "github.com/aescanero/bago/internal/config"

// Resolver answers cross-project delivery questions against an
// orchestration snapshot. Pure and safe for concurrent use.
type Resolver struct{}

// NewResolver creates a permission resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// CanDeliver reports whether a message from sourceProjectID may be
// delivered to targetProjectID.
//
// Same-project delivery is always allowed. Cross-project delivery follows
// the configured mode: "all" allows everything, "none" denies everything,
// "explicit" requires the source project's override to opt in and to list
// the target. A source project without an override cannot cross under
// "explicit".
func (r *Resolver) CanDeliver(cfg *config.Orchestration, sourceProjectID, targetProjectID string) bool {
	if sourceProjectID == targetProjectID {
		return true
	}

	switch cfg.Permissions.CrossProjectMode {
	case config.CrossProjectAll:
		return true
	case config.CrossProjectNone:
		return false
	case config.CrossProjectExplicit:
		override, ok := cfg.Project(sourceProjectID)
		if !ok || !override.AllowCrossProject {
			return false
		}
		return override.AllowsTarget(targetProjectID)
	default:
		return false
	}
}
