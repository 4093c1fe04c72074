// Package learning holds the row-level resources of the campus: courses, enrollments, events and announcements.
package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrCourseNotFound       = errors.New("course not found")
	ErrCourseNotOpen        = errors.New("course is not open for enrollment")
	ErrAlreadyEnrolled      = errors.New("already enrolled in this course")
	ErrEventNotFound        = errors.New("event not found")
	ErrAnnouncementNotFound = errors.New("announcement not found")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, crs Course) (Course, error)
		// QueryCourses returns the newest courses first.
		QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error)

		// CreateEnrollment returns ErrAlreadyEnrolled when the user already holds a seat.
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		// QueryEnrollments returns the user's enrollments with their Course, newest first.
		QueryEnrollments(ctx context.Context, userID string) ([]Enrollment, error)

		CreateEvent(ctx context.Context, evt Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		UpdateEvent(ctx context.Context, evt Event) (Event, error)
		DeleteEvent(ctx context.Context, id string) error
		// QueryEvents returns the soonest events first.
		QueryEvents(ctx context.Context, filter EventFilter) ([]Event, error)

		CreateAnnouncement(ctx context.Context, ann Announcement) (Announcement, error)
		GetAnnouncement(ctx context.Context, id string) (Announcement, error)
		UpdateAnnouncement(ctx context.Context, ann Announcement) (Announcement, error)
		DeleteAnnouncement(ctx context.Context, id string) error
		// QueryAnnouncements returns the newest announcements first.
		QueryAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]Announcement, error)
	}

	Service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFunc: time.Now}
}

func (svc *Service) now() time.Time { return svc.nowFunc().UTC() }

// Courses

// CreateCourse stores a course taught by instructorID. Validation is the caller's job.
func (svc *Service) CreateCourse(ctx context.Context, instructorID string, nc NewCourse) (Course, error) {
	now := svc.now()
	return svc.repo.CreateCourse(ctx, Course{
		ID:           uuid.NewString(),
		Title:        nc.Title,
		Description:  nc.Description,
		Category:     nc.Category,
		Duration:     nc.Duration,
		Price:        nc.Price,
		Difficulty:   nc.Difficulty,
		InstructorID: instructorID,
		Status:       nc.Status,
		TotalLessons: nc.TotalLessons,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) SetCourseStatus(ctx context.Context, id string, status CourseStatus) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	crs.Status = status
	crs.UpdatedAt = svc.now()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *Service) QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter)
}

// Enroll gives userID a seat in an approved course.
func (svc *Service) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if crs.Status != CourseApproved {
		return Enrollment{}, ErrCourseNotOpen
	}
	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: svc.now(),
	})
	if err != nil {
		return Enrollment{}, err
	}
	enr.Course = crs
	return enr, nil
}

func (svc *Service) Enrollments(ctx context.Context, userID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, userID)
}

// Events

func (svc *Service) CreateEvent(ctx context.Context, createdBy string, ne NewEvent) (Event, error) {
	return svc.repo.CreateEvent(ctx, Event{
		ID:          uuid.NewString(),
		Title:       ne.Title,
		Description: ne.Description,
		Date:        ne.Date,
		Time:        ne.Time,
		Location:    ne.Location,
		Capacity:    ne.Capacity,
		Type:        ne.Type,
		Status:      EventActive,
		Organizer:   "Admin",
		CreatedBy:   createdBy,
		CreatedAt:   svc.now(),
	})
}

func (svc *Service) CancelEvent(ctx context.Context, id string) (Event, error) {
	evt, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if evt.Status == EventCancelled {
		return evt, nil
	}
	evt.Status = EventCancelled
	return svc.repo.UpdateEvent(ctx, evt)
}

func (svc *Service) DeleteEvent(ctx context.Context, id string) error {
	return svc.repo.DeleteEvent(ctx, id)
}

func (svc *Service) QueryEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	return svc.repo.QueryEvents(ctx, filter)
}

// Announcements

func (svc *Service) CreateAnnouncement(ctx context.Context, createdBy string, na NewAnnouncement) (Announcement, error) {
	return svc.repo.CreateAnnouncement(ctx, Announcement{
		ID:             uuid.NewString(),
		Title:          na.Title,
		Content:        na.Content,
		Priority:       na.Priority,
		TargetAudience: na.TargetAudience,
		CreatedBy:      createdBy,
		IsActive:       true,
		CreatedAt:      svc.now(),
	})
}

func (svc *Service) GetAnnouncement(ctx context.Context, id string) (Announcement, error) {
	return svc.repo.GetAnnouncement(ctx, id)
}

// ToggleAnnouncement flips whether students see the announcement.
func (svc *Service) ToggleAnnouncement(ctx context.Context, id string) (Announcement, error) {
	ann, err := svc.repo.GetAnnouncement(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	ann.IsActive = !ann.IsActive
	return svc.repo.UpdateAnnouncement(ctx, ann)
}

func (svc *Service) DeleteAnnouncement(ctx context.Context, id string) error {
	return svc.repo.DeleteAnnouncement(ctx, id)
}

func (svc *Service) QueryAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, filter)
}
