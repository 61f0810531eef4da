package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	listCount int
	listErr   error
	lastList  models.UserFilter
	auditLogs []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastList = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func seededUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{
		adminUUID:   {ID: adminUUID, Email: "admin@example.com", FullName: "Ada Admin", Role: models.RoleAdmin, Active: true},
		studentUUID: {ID: studentUUID, Email: "sam@example.com", FullName: "Sam Student", Role: models.RoleStudent, Active: true},
	}}
}

func TestUserServiceList(t *testing.T) {
	repo := seededUserRepo()
	svc := NewUserService(repo, nil, nil, zap.NewNop())

	users, pagination, err := svc.List(context.Background(), adminPrincipal, models.UserFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 20, repo.lastList.PageSize)

	_, _, err = svc.List(context.Background(), tutorPrincipal, models.UserFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestUserServiceCreate(t *testing.T) {
	repo := seededUserRepo()
	svc := NewUserService(repo, nil, nil, zap.NewNop())
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "test"}

	user, err := svc.Create(context.Background(), adminPrincipal, models.CreateUserRequest{
		Email:    "  TESS@EXAMPLE.COM ",
		FullName: "Tess Tutor",
		Password: "correct-horse",
		Role:     models.RoleTutor,
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, "tess@example.com", user.Email)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
	assert.Equal(t, "10.0.0.1", repo.auditLogs[0].IPAddress)

	_, err = svc.Create(context.Background(), adminPrincipal, models.CreateUserRequest{
		Email: "sam@example.com", FullName: "Dup", Password: "password1", Role: models.RoleStudent,
	}, meta)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.Create(context.Background(), adminPrincipal, models.CreateUserRequest{
		Email: "x@example.com", FullName: "Bad", Password: "password1", Role: "SUPERADMIN",
	}, meta)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceUpdate(t *testing.T) {
	repo := seededUserRepo()
	svc := NewUserService(repo, nil, nil, zap.NewNop())
	role := models.RoleTutor
	active := false

	user, err := svc.Update(context.Background(), adminPrincipal, studentUUID, models.UpdateUserRequest{Role: &role, Active: &active}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTutor, user.Role)
	assert.False(t, user.Active)
	assert.Equal(t, "Sam Student", user.FullName)
	assert.NotEmpty(t, repo.auditLogs)

	_, err = svc.Update(context.Background(), adminPrincipal, adminUUID, models.UpdateUserRequest{Active: &active}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Update(context.Background(), adminPrincipal, "missing", models.UpdateUserRequest{}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUserServiceDelete(t *testing.T) {
	repo := seededUserRepo()
	svc := NewUserService(repo, nil, nil, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), adminPrincipal, studentUUID, RequestMeta{}))
	assert.False(t, repo.users[studentUUID].Active)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[0].Action)

	err := svc.Delete(context.Background(), adminPrincipal, adminUUID, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceGetOwnAccount(t *testing.T) {
	svc := NewUserService(seededUserRepo(), nil, nil, zap.NewNop())

	user, err := svc.Get(context.Background(), studentPrincipal, studentUUID)
	require.NoError(t, err)
	assert.Equal(t, "Sam Student", user.FullName)

	_, err = svc.Get(context.Background(), studentPrincipal, adminUUID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
