// Package permissions centralizes the (viewer, provider) capability
// evaluation that would otherwise scatter across handlers.
package permissions

import "github.com/lishushu94/provider-console/internal/domain"

// Capabilities is the full set of actions a viewer may take on a provider.
type Capabilities struct {
	CanEdit        bool `json:"can_edit"`
	CanManageKeys  bool `json:"can_manage_keys"`
	CanShareToPool bool `json:"can_share_to_pool"`
	CanEditSharing bool `json:"can_edit_sharing"`

	// CanAudit gates the whole audit surface: status card, actions, history.
	// Private providers never expose it, regardless of viewer role.
	CanAudit bool `json:"can_audit"`
}

// Evaluate is pure: same inputs, same capability set.
func Evaluate(v domain.Viewer, p *domain.Provider) Capabilities {
	owner := v.UserID != "" && v.UserID == p.OwnerID
	admin := v.IsAdmin()

	return Capabilities{
		CanEdit:        admin || owner,
		CanManageKeys:  admin || owner,
		CanShareToPool: owner && !p.Visibility.Shared(),
		CanEditSharing: admin || (owner && p.Visibility.Shared()),
		CanAudit:       admin && p.Visibility.Shared(),
	}
}
