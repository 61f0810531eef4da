package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()
	admin := models.Principal{UserID: "a1", Role: models.RoleAdmin}
	tutor := models.Principal{UserID: "t1", Role: models.RoleTutor}
	student := models.Principal{UserID: "s1", Role: models.RoleStudent}

	tests := []struct {
		name       string
		principal  models.Principal
		capability models.Capability
		owners     []string
		want       bool
	}{
		{"admin any class", admin, models.CapClassCancel, []string{"t9", "s9"}, true},
		{"admin reviews tutors", admin, models.CapTutorReview, nil, true},
		{"tutor own class", tutor, models.CapClassConduct, []string{"t1"}, true},
		{"tutor foreign class", tutor, models.CapClassConduct, []string{"t2"}, false},
		{"tutor cannot review", tutor, models.CapTutorReview, []string{"t1"}, false},
		{"student own class", student, models.CapClassCancel, []string{"t1", "s1"}, true},
		{"student cannot conduct", student, models.CapClassConduct, []string{"s1"}, false},
		{"student cannot export", student, models.CapReportExport, nil, false},
		{"empty owner never matches", models.Principal{Role: models.RoleStudent}, models.CapClassView, []string{""}, false},
		{"unknown role", models.Principal{UserID: "x", Role: "GUEST"}, models.CapClassView, []string{"x"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.Can(tc.principal, tc.capability, tc.owners...))
		})
	}
}

func TestPolicyHolds(t *testing.T) {
	policy := DefaultPolicy()
	assert.True(t, policy.Holds(models.RoleTutor, models.CapAvailabilityManage))
	assert.False(t, policy.Holds(models.RoleStudent, models.CapAvailabilityManage))
	assert.True(t, policy.Holds(models.RoleStudent, models.CapAvailabilityBook))
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	err := authorize(DefaultPolicy(), models.Principal{UserID: "s1", Role: models.RoleStudent}, models.CapAnalyticsView)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.NoError(t, authorize(nil, models.Principal{UserID: "a1", Role: models.RoleAdmin}, models.CapAnalyticsView))
}
