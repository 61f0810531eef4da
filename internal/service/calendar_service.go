package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/noah-isme/tutorly-api/internal/models"
)

type calendarSource interface {
	ListForCalendar(ctx context.Context, principal models.Principal, from, to *time.Time) ([]models.ClassDetail, error)
}

// CalendarService renders a user's classes as an iCalendar feed.
type CalendarService struct {
	classes calendarSource
	loc     *time.Location
	window  time.Duration
}

// NewCalendarService constructs the service. Feeds cover window on each side of now.
func NewCalendarService(classes calendarSource, loc *time.Location) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{classes: classes, loc: loc, window: 90 * 24 * time.Hour}
}

// Feed returns the caller's classes as text/calendar content.
func (s *CalendarService) Feed(ctx context.Context, principal models.Principal) ([]byte, error) {
	now := time.Now().UTC()
	from := now.Add(-s.window)
	to := now.Add(s.window)
	classes, err := s.classes.ListForCalendar(ctx, principal, &from, &to)
	if err != nil {
		return nil, err
	}
	return []byte(s.render(classes, principal.UserID, now)), nil
}

func (s *CalendarService) render(classes []models.ClassDetail, viewerID string, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//Tutorly//Classes//EN")
	cal.SetXWRCalName("Tutorly classes")
	cal.SetXWRTimezone(s.loc.String())

	for i := range classes {
		class := &classes[i]
		event := cal.AddEvent(class.ID + "@tutorly")
		event.SetDtStampTime(stamp)
		event.SetCreatedTime(class.CreatedAt)
		event.SetModifiedAt(class.UpdatedAt)
		event.SetStartAt(class.ScheduledAt)
		event.SetEndAt(class.EndsAt())
		event.SetSummary(calendarSummary(class, viewerID))
		if class.Notes != "" {
			event.SetDescription(class.Notes)
		}
		if class.MeetingLink != nil {
			event.SetURL(*class.MeetingLink)
			location := *class.MeetingLink
			if class.MeetingPlatform != nil {
				location = *class.MeetingPlatform + ": " + location
			}
			event.SetLocation(location)
		}
		switch class.Status {
		case models.ClassCancelled:
			event.SetStatus(ics.ObjectStatusCancelled)
		default:
			event.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal.Serialize()
}

func calendarSummary(class *models.ClassDetail, viewerID string) string {
	counterpart := class.TutorName
	if viewerID == class.TutorID {
		counterpart = class.StudentName
	}
	subject := strings.TrimSpace(class.Subject)
	if subject == "" {
		subject = "Tutoring session"
	}
	return fmt.Sprintf("%s with %s", subject, counterpart)
}
