package permissions

import (
	"testing"

	"github.com/lishushu94/provider-console/internal/domain"
)

func TestEvaluate(t *testing.T) {
	admin := domain.Viewer{UserID: "u-admin", Role: "admin"}
	owner := domain.Viewer{UserID: "u-owner", Role: "user"}
	other := domain.Viewer{UserID: "u-other", Role: "user"}

	sharedProvider := &domain.Provider{OwnerID: "u-owner", Visibility: domain.VisibilityPublic}
	restrictedProvider := &domain.Provider{OwnerID: "u-owner", Visibility: domain.VisibilityRestricted}
	privateProvider := &domain.Provider{OwnerID: "u-owner", Visibility: domain.VisibilityPrivate}

	tests := []struct {
		name     string
		viewer   domain.Viewer
		provider *domain.Provider
		want     Capabilities
	}{
		{
			name:     "admin on public provider gets full audit surface",
			viewer:   admin,
			provider: sharedProvider,
			want:     Capabilities{CanEdit: true, CanManageKeys: true, CanEditSharing: true, CanAudit: true},
		},
		{
			name:     "admin on restricted provider can still audit",
			viewer:   admin,
			provider: restrictedProvider,
			want:     Capabilities{CanEdit: true, CanManageKeys: true, CanEditSharing: true, CanAudit: true},
		},
		{
			name:     "admin on private provider never sees audit",
			viewer:   admin,
			provider: privateProvider,
			want:     Capabilities{CanEdit: true, CanManageKeys: true, CanEditSharing: true},
		},
		{
			name:     "owner edits but never audits",
			viewer:   owner,
			provider: sharedProvider,
			want:     Capabilities{CanEdit: true, CanManageKeys: true, CanEditSharing: true},
		},
		{
			name:     "owner of a private provider may share it to the pool",
			viewer:   owner,
			provider: privateProvider,
			want:     Capabilities{CanEdit: true, CanManageKeys: true, CanShareToPool: true},
		},
		{
			name:     "unrelated viewer has no capabilities",
			viewer:   other,
			provider: sharedProvider,
			want:     Capabilities{},
		},
		{
			name:     "anonymous viewer has no capabilities",
			viewer:   domain.Viewer{},
			provider: sharedProvider,
			want:     Capabilities{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.viewer, tt.provider); got != tt.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
