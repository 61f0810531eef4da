package service

import (
	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

// Scope says over which records a role holds a capability.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAny
)

// Authorizer decides whether a principal may exercise a capability.
// ownerIDs are the users that own the target record; ScopeOwn grants require
// the principal to be one of them.
type Authorizer interface {
	Can(principal models.Principal, capability models.Capability, ownerIDs ...string) bool
	Holds(role models.UserRole, capability models.Capability) bool
}

// RolePolicy is a static role to capability table.
type RolePolicy struct {
	grants map[models.UserRole]map[models.Capability]Scope
}

// NewRolePolicy builds a policy from explicit grants.
func NewRolePolicy(grants map[models.UserRole]map[models.Capability]Scope) *RolePolicy {
	return &RolePolicy{grants: grants}
}

// DefaultPolicy is the platform policy: admins act on anything, tutors and
// students on the records they take part in.
func DefaultPolicy() *RolePolicy {
	all := []models.Capability{
		models.CapUserManage, models.CapTutorProfileEdit, models.CapTutorReview, models.CapAvailabilityManage,
		models.CapAvailabilityBook, models.CapClassSchedule, models.CapClassView, models.CapClassReschedule,
		models.CapClassCancel, models.CapClassConduct, models.CapCourseManage, models.CapCourseEnroll,
		models.CapProgressRecord, models.CapEnrollmentView, models.CapCertificateView, models.CapAnnouncementManage,
		models.CapAnalyticsView, models.CapReportExport,
	}
	admin := make(map[models.Capability]Scope, len(all))
	for _, capability := range all {
		admin[capability] = ScopeAny
	}

	return NewRolePolicy(map[models.UserRole]map[models.Capability]Scope{
		models.RoleAdmin: admin,
		models.RoleTutor: {
			models.CapTutorProfileEdit:   ScopeOwn,
			models.CapAvailabilityManage: ScopeOwn,
			models.CapClassSchedule:      ScopeOwn,
			models.CapClassView:          ScopeOwn,
			models.CapClassReschedule:    ScopeOwn,
			models.CapClassCancel:        ScopeOwn,
			models.CapClassConduct:       ScopeOwn,
			models.CapCourseManage:       ScopeOwn,
			models.CapEnrollmentView:     ScopeOwn,
			models.CapCertificateView:    ScopeOwn,
		},
		models.RoleStudent: {
			models.CapAvailabilityBook: ScopeOwn,
			models.CapClassSchedule:    ScopeOwn,
			models.CapClassView:        ScopeOwn,
			models.CapClassReschedule:  ScopeOwn,
			models.CapClassCancel:      ScopeOwn,
			models.CapCourseEnroll:     ScopeOwn,
			models.CapProgressRecord:   ScopeOwn,
			models.CapEnrollmentView:   ScopeOwn,
			models.CapCertificateView:  ScopeOwn,
		},
	})
}

// Scope returns the grant for role and capability.
func (p *RolePolicy) Scope(role models.UserRole, capability models.Capability) Scope {
	if p == nil {
		return ScopeNone
	}
	return p.grants[role][capability]
}

// Holds reports whether the role has the capability at any scope.
func (p *RolePolicy) Holds(role models.UserRole, capability models.Capability) bool {
	return p.Scope(role, capability) != ScopeNone
}

// Can implements Authorizer.
func (p *RolePolicy) Can(principal models.Principal, capability models.Capability, ownerIDs ...string) bool {
	switch p.Scope(principal.Role, capability) {
	case ScopeAny:
		return true
	case ScopeOwn:
		for _, id := range ownerIDs {
			if id != "" && id == principal.UserID {
				return true
			}
		}
	}
	return false
}

func authorize(authz Authorizer, principal models.Principal, capability models.Capability, ownerIDs ...string) error {
	if authz == nil {
		authz = DefaultPolicy()
	}
	if !authz.Can(principal, capability, ownerIDs...) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to "+string(capability))
	}
	return nil
}
