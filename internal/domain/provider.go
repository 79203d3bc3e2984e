package domain

import (
	"errors"
	"time"
)

// Visibility controls whether a provider participates in the shared pool.
type Visibility string

const (
	VisibilityPrivate    Visibility = "private"
	VisibilityRestricted Visibility = "restricted"
	VisibilityPublic     Visibility = "public"
)

// Shared reports whether the provider is exposed to the shared pool.
// Only shared providers carry an audit lifecycle.
func (v Visibility) Shared() bool {
	return v == VisibilityRestricted || v == VisibilityPublic
}

// AuditStatus is the approval lifecycle of a shared provider.
// The server is the single source of truth; clients only display the
// latest known value and request transitions.
type AuditStatus string

const (
	AuditPending         AuditStatus = "pending"
	AuditTesting         AuditStatus = "testing"
	AuditApproved        AuditStatus = "approved"
	AuditApprovedLimited AuditStatus = "approved_limited"
	AuditRejected        AuditStatus = "rejected"
)

// OperationStatus is the live/paused/offline axis of an approved provider.
type OperationStatus string

const (
	OperationActive  OperationStatus = "active"
	OperationPaused  OperationStatus = "paused"
	OperationOffline OperationStatus = "offline"
)

// Actions accepted by the console transition endpoints.
type AuditAction string

const (
	ActionTest           AuditAction = "test"
	ActionApprove        AuditAction = "approve"
	ActionApproveLimited AuditAction = "approve_limited"
	ActionReject         AuditAction = "reject"
)

type OperationAction string

const (
	ActionPause   OperationAction = "pause"
	ActionResume  OperationAction = "resume"
	ActionOffline OperationAction = "offline"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyDecided    = errors.New("provider status already changed by another decision")
	ErrReasonRequired    = errors.New("reject reason is required")
	ErrInvalidQPSCap     = errors.New("qps cap must be a positive integer")
	ErrForbidden         = errors.New("operation not permitted for this viewer")
	ErrNotShared         = errors.New("provider is not in the shared pool")
	ErrNotFound          = errors.New("provider not found")
	ErrActionInFlight    = errors.New("another audit action is already in flight")
	ErrNotServable       = errors.New("provider is not serving traffic")
)

type ProviderModel struct {
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
}

type Provider struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Vendor     string          `json:"vendor"`
	BaseURL    string          `json:"base_url"`
	OwnerID    string          `json:"owner_id"`
	Visibility Visibility      `json:"visibility"`
	Audit      AuditStatus     `json:"audit_status"`
	Operation  OperationStatus `json:"operation_status"`

	// LimitQPS is set only for approved_limited providers; nil means unlimited.
	LimitQPS     *int    `json:"limit_qps,omitempty"`
	RejectReason *string `json:"reject_reason,omitempty"`

	Models []ProviderModel `json:"models,omitempty"`

	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Approved reports whether the provider cleared audit (with or without a cap).
func (p *Provider) Approved() bool {
	return p.Audit == AuditApproved || p.Audit == AuditApprovedLimited
}

// NextAuditStatus validates an audit action against the current status and
// returns the resulting one. Rejected and approved states are terminal from
// the console; only direct server intervention resets a provider to pending.
func NextAuditStatus(cur AuditStatus, action AuditAction) (AuditStatus, error) {
	switch action {
	case ActionTest:
		if cur != AuditPending {
			return "", ErrInvalidTransition
		}
		return AuditTesting, nil
	case ActionApprove:
		if cur != AuditTesting {
			return "", ErrInvalidTransition
		}
		return AuditApproved, nil
	case ActionApproveLimited:
		if cur != AuditTesting {
			return "", ErrInvalidTransition
		}
		return AuditApprovedLimited, nil
	case ActionReject:
		if cur != AuditTesting {
			return "", ErrInvalidTransition
		}
		return AuditRejected, nil
	}
	return "", ErrInvalidTransition
}

// NextOperationStatus validates an operation action. Offline is terminal:
// no action brings a provider back online through the console.
func NextOperationStatus(cur OperationStatus, action OperationAction) (OperationStatus, error) {
	switch action {
	case ActionPause:
		if cur != OperationActive {
			return "", ErrInvalidTransition
		}
		return OperationPaused, nil
	case ActionResume:
		if cur != OperationPaused {
			return "", ErrInvalidTransition
		}
		return OperationActive, nil
	case ActionOffline:
		if cur != OperationActive && cur != OperationPaused {
			return "", ErrInvalidTransition
		}
		return OperationOffline, nil
	}
	return "", ErrInvalidTransition
}
