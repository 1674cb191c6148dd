// Package authz holds the authorization policy for the syllabus workflow:
// pure, deterministic decision functions over (roles, ownership, state,
// action). Nothing here performs I/O, and every unknown role, action or
// state denies.
package authz

import (
	"github.com/smd-platform/syllabus-api/internal/models"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
)

// TransitionRule describes one edge of the workflow state machine together
// with its guard.
type TransitionRule struct {
	From          models.WorkflowStatus
	To            models.WorkflowStatus
	Roles         []models.UserRole
	RequireOwner  bool
	RequireReason bool
}

// transitions is the closed transition table. Every guarded action appears
// exactly once; actions missing from this map are denied outright.
var transitions = map[models.WorkflowActionType]TransitionRule{
	models.ActionSubmit: {
		From:         models.StatusDraft,
		To:           models.StatusPendingReview,
		Roles:        []models.UserRole{models.RoleLecturer},
		RequireOwner: true,
	},
	models.ActionHODApprove: {
		From:  models.StatusPendingReview,
		To:    models.StatusPendingApproval,
		Roles: []models.UserRole{models.RoleHOD},
	},
	models.ActionHODReject: {
		From:          models.StatusPendingReview,
		To:            models.StatusDraft,
		Roles:         []models.UserRole{models.RoleHOD},
		RequireReason: true,
	},
	models.ActionAAApprove: {
		From:  models.StatusPendingApproval,
		To:    models.StatusApproved,
		Roles: []models.UserRole{models.RoleAA},
	},
	models.ActionAAReject: {
		From:          models.StatusPendingApproval,
		To:            models.StatusPendingReview,
		Roles:         []models.UserRole{models.RoleAA},
		RequireReason: true,
	},
	models.ActionPublish: {
		From:  models.StatusApproved,
		To:    models.StatusPublished,
		Roles: []models.UserRole{models.RolePrincipal, models.RoleAdmin},
	},
	models.ActionUnpublish: {
		From:  models.StatusPublished,
		To:    models.StatusApproved,
		Roles: []models.UserRole{models.RolePrincipal, models.RoleAdmin},
	},
}

// Rule exposes the transition rule for an action. The second return value is
// false for unknown actions.
func Rule(action models.WorkflowActionType) (TransitionRule, bool) {
	rule, ok := transitions[action]
	return rule, ok
}

// CheckTransition decides whether the actor may perform the action on a
// version currently in the given state. The error distinguishes "wrong
// permission" (Forbidden) from "wrong state" (InvalidTransition) so clients
// can tell them apart; permission is evaluated first, regardless of state.
func CheckTransition(claims *models.JWTClaims, ownerID string, current models.WorkflowStatus, action models.WorkflowActionType) error {
	rule, ok := transitions[action]
	if !ok {
		return appErrors.ErrForbidden
	}
	if claims == nil || !claims.HasAnyRole(rule.Roles...) {
		return appErrors.ErrForbidden
	}
	if rule.RequireOwner && claims.UserID != ownerID {
		return appErrors.ErrForbidden
	}
	if !models.KnownStatus(current) || current != rule.From {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// CanMutateFiles is the shared guard for every attachment mutation
// (upload, replace, rename, delete): lecturer, owner of the syllabus, and
// the version still in DRAFT.
func CanMutateFiles(claims *models.JWTClaims, ownerID string, status models.WorkflowStatus) bool {
	if claims == nil || !claims.HasRole(models.RoleLecturer) {
		return false
	}
	if claims.UserID != ownerID {
		return false
	}
	return status == models.StatusDraft
}

// statusRank orders workflow states for the visibility ladder. Unknown
// states rank below everything and therefore deny.
var statusRank = map[models.WorkflowStatus]int{
	models.StatusDraft:           0,
	models.StatusPendingReview:   1,
	models.StatusPendingApproval: 2,
	models.StatusApproved:        3,
	models.StatusPublished:       4,
}

func statusAtLeast(status, min models.WorkflowStatus) bool {
	current, ok := statusRank[status]
	if !ok {
		return false
	}
	return current >= statusRank[min]
}

// CanViewVersion decides read visibility for a version and its attachments.
// Admins see everything; lecturers see their own work and anything
// published; reviewer roles see versions that have reached their desk;
// students and anonymous callers see published versions only.
func CanViewVersion(claims *models.JWTClaims, ownerID string, status models.WorkflowStatus) bool {
	if claims == nil {
		return status == models.StatusPublished
	}
	if claims.HasRole(models.RoleAdmin) {
		return true
	}
	if claims.HasRole(models.RoleLecturer) && (claims.UserID == ownerID || status == models.StatusPublished) {
		return true
	}
	if claims.HasRole(models.RoleHOD) && statusAtLeast(status, models.StatusPendingReview) {
		return true
	}
	if claims.HasRole(models.RoleAA) && statusAtLeast(status, models.StatusPendingApproval) {
		return true
	}
	if claims.HasRole(models.RolePrincipal) && statusAtLeast(status, models.StatusApproved) {
		return true
	}
	if claims.HasRole(models.RoleStudent) && status == models.StatusPublished {
		return true
	}
	return false
}

// PendingQueueStatus maps a reviewer role to the workflow state feeding its
// work queue. The second return value is false for roles without a queue.
func PendingQueueStatus(role models.UserRole) (models.WorkflowStatus, bool) {
	switch role {
	case models.RoleHOD:
		return models.StatusPendingReview, true
	case models.RoleAA:
		return models.StatusPendingApproval, true
	case models.RolePrincipal:
		return models.StatusApproved, true
	default:
		return "", false
	}
}
