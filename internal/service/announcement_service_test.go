package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
)

type memAnnouncements struct {
	items      map[string]*models.Announcement
	lastFilter models.AnnouncementFilter
	seq        int
}

func newMemAnnouncements() *memAnnouncements {
	return &memAnnouncements{items: make(map[string]*models.Announcement)}
}

func (m *memAnnouncements) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	m.lastFilter = filter
	var out []models.Announcement
	for _, item := range m.items {
		for _, audience := range filter.Audiences {
			if item.Audience == audience {
				out = append(out, *item)
				break
			}
		}
	}
	return out, len(out), nil
}

func (m *memAnnouncements) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (m *memAnnouncements) Create(ctx context.Context, announcement *models.Announcement) error {
	m.seq++
	announcement.ID = "ann-" + strconv.Itoa(m.seq)
	copied := *announcement
	m.items[announcement.ID] = &copied
	return nil
}

func (m *memAnnouncements) Update(ctx context.Context, announcement *models.Announcement) error {
	copied := *announcement
	m.items[announcement.ID] = &copied
	return nil
}

func (m *memAnnouncements) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func TestAnnouncementCreateBroadcasts(t *testing.T) {
	repo := newMemAnnouncements()
	audit := &recordingAudit{}
	publisher := &recordingPublisher{}
	svc := NewAnnouncementService(repo, audit, publisher, nil, nil, nil)

	ann, err := svc.Create(context.Background(), adminPrincipal, models.CreateAnnouncementRequest{
		Title:    " Maintenance ",
		Content:  "Scheduling is read-only on Sunday.",
		Audience: models.AnnouncementAudienceTutors,
	})
	require.NoError(t, err)
	assert.Equal(t, "Maintenance", ann.Title)
	assert.Equal(t, models.AnnouncementPriorityNormal, ann.Priority)
	assert.Equal(t, adminUUID, ann.CreatedBy)

	require.Len(t, publisher.broadcast, 1)
	assert.Equal(t, EventAnnouncementCreated, publisher.broadcast[0].Type)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAnnouncement, audit.logs[0].Action)
}

func TestAnnouncementCreateSurvivesRelayOutage(t *testing.T) {
	svc := NewAnnouncementService(newMemAnnouncements(), nil, &recordingPublisher{err: realtime.ErrRelayDisabled}, nil, nil, nil)

	_, err := svc.Create(context.Background(), adminPrincipal, models.CreateAnnouncementRequest{
		Title: "Hello", Content: "World", Audience: models.AnnouncementAudienceAll,
	})
	assert.NoError(t, err)
}

func TestAnnouncementCreateValidation(t *testing.T) {
	svc := NewAnnouncementService(newMemAnnouncements(), nil, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, tutorPrincipal, models.CreateAnnouncementRequest{Title: "x", Content: "y", Audience: models.AnnouncementAudienceAll})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Create(ctx, adminPrincipal, models.CreateAnnouncementRequest{Title: "x", Content: "y", Audience: "PARENTS"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := published.Add(-time.Hour)
	_, err = svc.Create(ctx, adminPrincipal, models.CreateAnnouncementRequest{
		Title: "x", Content: "y", Audience: models.AnnouncementAudienceAll, PublishedAt: &published, ExpiresAt: &expires,
	})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAnnouncementAudienceScoping(t *testing.T) {
	repo := newMemAnnouncements()
	svc := NewAnnouncementService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	forTutors, err := svc.Create(ctx, adminPrincipal, models.CreateAnnouncementRequest{Title: "Tutors", Content: "c", Audience: models.AnnouncementAudienceTutors})
	require.NoError(t, err)
	_, err = svc.Create(ctx, adminPrincipal, models.CreateAnnouncementRequest{Title: "All", Content: "c", Audience: models.AnnouncementAudienceAll})
	require.NoError(t, err)

	items, page, err := svc.List(ctx, studentPrincipal, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.Page)
	assert.ElementsMatch(t, models.AudiencesFor(models.RoleStudent), repo.lastFilter.Audiences)

	_, err = svc.Get(ctx, studentPrincipal, forTutors.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = svc.Get(ctx, tutorPrincipal, forTutors.ID)
	assert.NoError(t, err)
}

func TestAnnouncementUpdateAndDelete(t *testing.T) {
	repo := newMemAnnouncements()
	audit := &recordingAudit{}
	svc := NewAnnouncementService(repo, audit, nil, nil, nil, nil)
	ctx := context.Background()

	ann, err := svc.Create(ctx, adminPrincipal, models.CreateAnnouncementRequest{Title: "Draft", Content: "c", Audience: models.AnnouncementAudienceAll})
	require.NoError(t, err)

	pinned := true
	title := "Final"
	updated, err := svc.Update(ctx, adminPrincipal, ann.ID, models.UpdateAnnouncementRequest{Title: &title, IsPinned: &pinned})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.True(t, updated.IsPinned)

	blank := "  "
	_, err = svc.Update(ctx, adminPrincipal, ann.ID, models.UpdateAnnouncementRequest{Title: &blank})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	require.NoError(t, svc.Delete(ctx, adminPrincipal, ann.ID))
	assert.True(t, errors.Is(svc.Delete(ctx, adminPrincipal, ann.ID), appErrors.ErrNotFound))
	assert.Len(t, audit.logs, 3)
}
