package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
)

const (
	tutorUUID   = "11111111-1111-4111-8111-111111111111"
	studentUUID = "22222222-2222-4222-8222-222222222222"
	adminUUID   = "33333333-3333-4333-8333-333333333333"
	otherUUID   = "44444444-4444-4444-8444-444444444444"
)

var (
	tutorPrincipal   = models.Principal{UserID: tutorUUID, Role: models.RoleTutor}
	studentPrincipal = models.Principal{UserID: studentUUID, Role: models.RoleStudent}
	adminPrincipal   = models.Principal{UserID: adminUUID, Role: models.RoleAdmin}
)

// memClassRepo mimics the exclusive writes of the SQL repository in memory.
type memClassRepo struct {
	mu      sync.Mutex
	classes map[string]*models.ClassSession
}

func newMemClassRepo(existing ...models.ClassSession) *memClassRepo {
	repo := &memClassRepo{classes: make(map[string]*models.ClassSession)}
	for i := range existing {
		class := existing[i]
		repo.classes[class.ID] = &class
	}
	return repo
}

func (r *memClassRepo) GetByID(ctx context.Context, id string) (*models.ClassSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	class, ok := r.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *class
	return &copied, nil
}

func (r *memClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	all, err := r.ListAll(ctx, filter)
	return all, len(all), err
}

func (r *memClassRepo) ListAll(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ClassDetail
	for _, class := range r.classes {
		if filter.TutorID != "" && class.TutorID != filter.TutorID {
			continue
		}
		if filter.StudentID != "" && class.StudentID != filter.StudentID {
			continue
		}
		if filter.ParticipantID != "" && !class.HasParticipant(filter.ParticipantID) {
			continue
		}
		out = append(out, models.ClassDetail{ClassSession: *class, TutorName: "Tutor", StudentName: "Student"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memClassRepo) ListActiveForTutor(ctx context.Context, tutorID string, from, to time.Time) ([]models.ClassSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ClassSession
	for _, class := range r.classes {
		if class.TutorID == tutorID && isActive(class.Status) && !class.ScheduledAt.Before(from) && class.ScheduledAt.Before(to) {
			out = append(out, *class)
		}
	}
	return out, nil
}

func (r *memClassRepo) CreateExclusive(ctx context.Context, class *models.ClassSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.overlapLocked(class, ""); err != nil {
		return err
	}
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.CreatedAt = time.Now().UTC()
	class.UpdatedAt = class.CreatedAt
	copied := *class
	r.classes[class.ID] = &copied
	return nil
}

func (r *memClassRepo) RescheduleExclusive(ctx context.Context, class *models.ClassSession, checkOverlap bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.classes[class.ID]
	if !ok || (stored.Status != models.ClassScheduled && stored.Status != models.ClassRescheduled) {
		return repository.ErrStaleState
	}
	if checkOverlap {
		if err := r.overlapLocked(class, class.ID); err != nil {
			return err
		}
	}
	copied := *class
	r.classes[class.ID] = &copied
	return nil
}

func (r *memClassRepo) UpdateStatus(ctx context.Context, class *models.ClassSession, from []models.ClassStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.classes[class.ID]
	if !ok {
		return repository.ErrStaleState
	}
	allowed := false
	for _, status := range from {
		if stored.Status == status {
			allowed = true
		}
	}
	if !allowed {
		return repository.ErrStaleState
	}
	copied := *class
	r.classes[class.ID] = &copied
	return nil
}

func (r *memClassRepo) overlapLocked(class *models.ClassSession, ignoreID string) error {
	for _, other := range r.classes {
		if other.ID == ignoreID || other.TutorID != class.TutorID || !isActive(other.Status) {
			continue
		}
		if Overlaps(other.ScheduledAt, other.EndsAt(), class.ScheduledAt, class.EndsAt()) {
			return &repository.OverlapError{ClassID: other.ID, ScheduledAt: other.ScheduledAt, Duration: other.DurationMinutes}
		}
	}
	return nil
}

func (r *memClassRepo) scheduledAt(id string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	class, ok := r.classes[id]
	if !ok {
		return nil
	}
	at := class.ScheduledAt
	return &at
}

func (r *memClassRepo) status(id string) models.ClassStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classes[id].Status
}

func isActive(status models.ClassStatus) bool {
	for _, s := range models.ActiveClassStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// memSlotRepo is an in-memory availability repository.
type memSlotRepo struct {
	mu          sync.Mutex
	slots       map[string]*models.AvailabilitySlot
	classes     *memClassRepo
	markBooked  func(slotID string) bool
	released    []string
	createdSlot []*models.AvailabilitySlot
}

func newMemSlotRepo(slots ...models.AvailabilitySlot) *memSlotRepo {
	repo := &memSlotRepo{slots: make(map[string]*models.AvailabilitySlot)}
	for i := range slots {
		slot := slots[i]
		repo.slots[slot.ID] = &slot
	}
	return repo
}

func (r *memSlotRepo) GetByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *slot
	return &copied, nil
}

func (r *memSlotRepo) List(ctx context.Context, filter models.AvailabilityFilter) ([]models.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilitySlot
	for _, slot := range r.slots {
		if filter.TutorID != "" && slot.TutorID != filter.TutorID {
			continue
		}
		if filter.Active != nil && slot.IsActive != *filter.Active {
			continue
		}
		out = append(out, *slot)
	}
	return out, nil
}

func (r *memSlotRepo) ListActiveOnKey(ctx context.Context, tutorID string, dayOfWeek *int, specificDate *string) ([]models.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilitySlot
	for _, slot := range r.slots {
		if slot.TutorID != tutorID || !slot.IsActive {
			continue
		}
		if dayOfWeek != nil && slot.DayOfWeek != nil && *slot.DayOfWeek == *dayOfWeek {
			out = append(out, *slot)
		}
		if specificDate != nil && slot.SpecificDate != nil && *slot.SpecificDate == *specificDate {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (r *memSlotRepo) ListBookedOn(ctx context.Context, tutorID, date string, weekday int) ([]models.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilitySlot
	for _, slot := range r.slots {
		if slot.TutorID != tutorID || !slot.IsBooked {
			continue
		}
		if (slot.SpecificDate != nil && *slot.SpecificDate == date) || (slot.DayOfWeek != nil && *slot.DayOfWeek == weekday) {
			copied := *slot
			if copied.ClassID != nil && r.classes != nil {
				copied.BookedFor = r.classes.scheduledAt(*copied.ClassID)
			}
			out = append(out, copied)
		}
	}
	return out, nil
}

func (r *memSlotRepo) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	copied := *slot
	r.slots[slot.ID] = &copied
	r.createdSlot = append(r.createdSlot, slot)
	return nil
}

func (r *memSlotRepo) Update(ctx context.Context, slot *models.AvailabilitySlot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.slots[slot.ID]
	if !ok || stored.IsBooked {
		return false, nil
	}
	copied := *slot
	r.slots[slot.ID] = &copied
	return true, nil
}

func (r *memSlotRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.slots[id]
	if !ok || stored.IsBooked {
		return false, nil
	}
	delete(r.slots, id)
	return true, nil
}

func (r *memSlotRepo) MarkBooked(ctx context.Context, slotID, classID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markBooked != nil && !r.markBooked(slotID) {
		return false, nil
	}
	slot, ok := r.slots[slotID]
	if !ok || slot.IsBooked || !slot.IsActive {
		return false, nil
	}
	slot.IsBooked = true
	slot.ClassID = &classID
	return true, nil
}

func (r *memSlotRepo) Release(ctx context.Context, slotID, classID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, slotID)
	slot, ok := r.slots[slotID]
	if ok && slot.ClassID != nil && *slot.ClassID == classID {
		slot.IsBooked = false
		slot.ClassID = nil
	}
	return nil
}

func (r *memSlotRepo) ReleaseRecurring(ctx context.Context, slotID, classID string) error {
	r.mu.Lock()
	slot, ok := r.slots[slotID]
	recurring := ok && slot.Recurring()
	r.mu.Unlock()
	if !recurring {
		return nil
	}
	return r.Release(ctx, slotID, classID)
}

type fakeTutorRepo struct {
	tutors   map[string]*models.TutorDetail
	reviewed map[string]models.TutorApprovalStatus
	upserted []*models.TutorProfile
}

func newFakeTutorRepo(details ...models.TutorDetail) *fakeTutorRepo {
	repo := &fakeTutorRepo{tutors: make(map[string]*models.TutorDetail), reviewed: make(map[string]models.TutorApprovalStatus)}
	for i := range details {
		detail := details[i]
		repo.tutors[detail.UserID] = &detail
	}
	return repo
}

func approvedTutor(id string) models.TutorDetail {
	return models.TutorDetail{
		TutorProfile: models.TutorProfile{UserID: id, ApprovalStatus: models.TutorApproved, Active: true},
		FullName:     "Tess Tutor",
		UserActive:   true,
	}
}

func (r *fakeTutorRepo) FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error) {
	tutor, ok := r.tutors[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *tutor
	return &copied, nil
}

func (r *fakeTutorRepo) List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error) {
	var out []models.TutorDetail
	for _, tutor := range r.tutors {
		if filter.Status != nil && tutor.ApprovalStatus != *filter.Status {
			continue
		}
		out = append(out, *tutor)
	}
	return out, len(out), nil
}

func (r *fakeTutorRepo) Upsert(ctx context.Context, profile *models.TutorProfile) error {
	r.upserted = append(r.upserted, profile)
	if tutor, ok := r.tutors[profile.UserID]; ok {
		tutor.TutorProfile = *profile
	}
	return nil
}

func (r *fakeTutorRepo) Review(ctx context.Context, userID string, status models.TutorApprovalStatus, reviewerID string, at time.Time) error {
	tutor, ok := r.tutors[userID]
	if !ok {
		return sql.ErrNoRows
	}
	tutor.ApprovalStatus = status
	r.reviewed[userID] = status
	return nil
}

type fakeUsers struct {
	users map[string]*models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*models.User)}
	for i := range users {
		user := users[i]
		f.users[user.ID] = &user
	}
	return f
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []NotificationInput
}

func (n *recordingNotifier) Notify(ctx context.Context, input NotificationInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, input)
	return nil
}

func (n *recordingNotifier) recipients(notificationType string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, input := range n.sent {
		if input.Type == notificationType {
			out = append(out, input.UserID)
		}
	}
	return out
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (a *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type schedulingFixture struct {
	classes  *memClassRepo
	slots    *memSlotRepo
	notifier *recordingNotifier
	audit    *recordingAudit
	service  *ClassService
	booking  *AvailabilityService
	now      time.Time
}

// newSchedulingFixture wires the class and availability services over in-memory repositories.
func newSchedulingFixture(existing ...models.ClassSession) *schedulingFixture {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	classes := newMemClassRepo(existing...)
	slots := newMemSlotRepo()
	slots.classes = classes
	tutors := newFakeTutorRepo(approvedTutor(tutorUUID))
	users := newFakeUsers(
		models.User{ID: studentUUID, Role: models.RoleStudent, Active: true, FullName: "Sam Student"},
		models.User{ID: otherUUID, Role: models.RoleStudent, Active: true, FullName: "Olive Other"},
	)
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	tutorService := NewTutorService(tutors, nil, nil, nil, nil, nil)
	checker := NewConflictChecker(classes, slots, time.UTC)

	svc := NewClassService(ClassServiceDeps{
		Repo:     classes,
		Tutors:   tutorService,
		Users:    users,
		Checker:  checker,
		Slots:    slots,
		Notifier: notifier,
		Audit:    audit,
	}, ClassServiceConfig{Location: time.UTC, MaxDurationMinutes: 480, RevalidateOnReschedule: true})
	svc.now = func() time.Time { return now }

	booking := NewAvailabilityService(slots, tutors, svc, nil, nil, nil, time.UTC)
	booking.now = func() time.Time { return now }

	return &schedulingFixture{classes: classes, slots: slots, notifier: notifier, audit: audit, service: svc, booking: booking, now: now}
}

type memCourses struct {
	mu      sync.Mutex
	courses map[string]*models.Course
	lessons map[string]*models.Lesson
}

func newMemCourses() *memCourses {
	return &memCourses{courses: make(map[string]*models.Course), lessons: make(map[string]*models.Lesson)}
}

// seed adds a published course with n lessons and returns their IDs.
func (r *memCourses) seed(courseID, instructorID string, n int) []string {
	r.mu.Lock()
	r.courses[courseID] = &models.Course{ID: courseID, Title: "Intro to Go", InstructorID: instructorID, Published: true}
	r.mu.Unlock()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		lesson := &models.Lesson{CourseID: courseID, Title: "Lesson"}
		_ = r.CreateLesson(context.Background(), lesson)
		ids = append(ids, lesson.ID)
	}
	return ids
}

func (r *memCourses) GetByID(ctx context.Context, id string) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (r *memCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Course
	for _, course := range r.courses {
		if filter.InstructorID != "" && course.InstructorID != filter.InstructorID {
			continue
		}
		if filter.Published != nil && course.Published != *filter.Published {
			continue
		}
		out = append(out, *course)
	}
	return out, len(out), nil
}

func (r *memCourses) Create(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	copied := *course
	r.courses[course.ID] = &copied
	return nil
}

func (r *memCourses) Update(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *course
	r.courses[course.ID] = &copied
	return nil
}

func (r *memCourses) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Position == 0 {
		last := 0
		for _, other := range r.lessons {
			if other.CourseID == lesson.CourseID && other.Position > last {
				last = other.Position
			}
		}
		lesson.Position = last + 1
	}
	copied := *lesson
	r.lessons[lesson.ID] = &copied
	return nil
}

func (r *memCourses) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lesson, ok := r.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *lesson
	return &copied, nil
}

func (r *memCourses) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Lesson
	for _, lesson := range r.lessons {
		if lesson.CourseID == courseID {
			out = append(out, *lesson)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *memCourses) CountLessons(ctx context.Context, courseID string) (int, error) {
	lessons, _ := r.ListLessons(ctx, courseID)
	return len(lessons), nil
}

// memEnrollments mirrors the sticky and monotonic writes of the SQL repository.
type memEnrollments struct {
	mu          sync.Mutex
	enrollments map[string]*models.CourseEnrollment
	progress    map[string]*models.LessonProgress
	courses     *memCourses
}

func newMemEnrollments(courses *memCourses) *memEnrollments {
	return &memEnrollments{
		enrollments: make(map[string]*models.CourseEnrollment),
		progress:    make(map[string]*models.LessonProgress),
		courses:     courses,
	}
}

func (r *memEnrollments) GetByID(ctx context.Context, id string) (*models.CourseEnrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	enrollment, ok := r.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *enrollment
	return &copied, nil
}

func (r *memEnrollments) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, enrollment := range r.enrollments {
		if enrollment.StudentID == studentID && enrollment.CourseID == courseID {
			copied := *enrollment
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, enrollment := range r.enrollments {
		if filter.StudentID != "" && enrollment.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && enrollment.CourseID != filter.CourseID {
			continue
		}
		out = append(out, models.EnrollmentDetail{CourseEnrollment: *enrollment})
	}
	return out, len(out), nil
}

func (r *memEnrollments) Create(ctx context.Context, enrollment *models.CourseEnrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	copied := *enrollment
	r.enrollments[enrollment.ID] = &copied
	return nil
}

func (r *memEnrollments) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrollments[id].Status = status
	return nil
}

func (r *memEnrollments) SaveProgress(ctx context.Context, enrollment *models.CourseEnrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.enrollments[enrollment.ID]
	stored.Progress = enrollment.Progress
	stored.CompletedLessons = enrollment.CompletedLessons
	stored.TotalLessons = enrollment.TotalLessons
	stored.LastLessonID = enrollment.LastLessonID
	if stored.Status != models.EnrollmentCompleted {
		stored.Status = enrollment.Status
	}
	if stored.CompletedAt == nil {
		stored.CompletedAt = enrollment.CompletedAt
	}
	enrollment.Status = stored.Status
	enrollment.CompletedAt = stored.CompletedAt
	return nil
}

func (r *memEnrollments) LinkCertificate(ctx context.Context, enrollmentID, certificateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.enrollments[enrollmentID]
	if stored.CertificateID == nil {
		stored.CertificateID = &certificateID
	}
	return nil
}

func (r *memEnrollments) UpsertLessonProgress(ctx context.Context, progress *models.LessonProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progress.StudentID + "/" + progress.LessonID
	stored, ok := r.progress[key]
	if !ok {
		copied := *progress
		r.progress[key] = &copied
		return nil
	}
	if progress.Percentage > stored.Percentage {
		stored.Percentage = progress.Percentage
	}
	if progress.Completed && !stored.Completed {
		stored.Completed = true
		stored.CompletedAt = progress.CompletedAt
	}
	*progress = *stored
	return nil
}

func (r *memEnrollments) CountCompletedLessons(ctx context.Context, studentID, courseID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.progress {
		if row.StudentID == studentID && row.CourseID == courseID && row.Completed {
			count++
		}
	}
	return count, nil
}

func (r *memEnrollments) ListLessonProgress(ctx context.Context, studentID, courseID string) ([]models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LessonProgress
	for _, row := range r.progress {
		if row.StudentID == studentID && row.CourseID == courseID {
			out = append(out, *row)
		}
	}
	return out, nil
}

// memCertificates enforces one certificate per (course, student).
type memCertificates struct {
	mu    sync.Mutex
	certs map[string]*models.Certificate
}

func newMemCertificates() *memCertificates {
	return &memCertificates{certs: make(map[string]*models.Certificate)}
}

func (r *memCertificates) CreateOnce(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.certs {
		if existing.CourseID == cert.CourseID && existing.StudentID == cert.StudentID {
			copied := *existing
			return &copied, false, nil
		}
	}
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	copied := *cert
	r.certs[cert.ID] = &copied
	return cert, true, nil
}

func (r *memCertificates) GetDetail(ctx context.Context, id string) (*models.CertificateDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CertificateDetail{Certificate: *cert, CourseTitle: "Intro to Go", StudentName: "Sam Student", InstructorName: "Tess Tutor"}, nil
}

func (r *memCertificates) ListByStudent(ctx context.Context, studentID string) ([]models.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Certificate
	for _, cert := range r.certs {
		if cert.StudentID == studentID {
			out = append(out, *cert)
		}
	}
	return out, nil
}

func (r *memCertificates) SetFilePath(ctx context.Context, id, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certs[id].FilePath = &path
	return nil
}

func (r *memCertificates) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.certs)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateOverview(ctx context.Context) {
	c.calls++
}

type recordingPublisher struct {
	mu        sync.Mutex
	published map[string][]realtime.Event
	broadcast []realtime.Event
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, userID string, evt realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = make(map[string][]realtime.Event)
	}
	p.published[userID] = append(p.published[userID], evt)
	return nil
}

func (p *recordingPublisher) Broadcast(ctx context.Context, evt realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.broadcast = append(p.broadcast, evt)
	return nil
}
