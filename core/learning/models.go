package learning

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/loopverse/campus/core"
)

type CourseStatus string

// Course statuses
const (
	CourseDraft       CourseStatus = "draft"
	CoursePublished   CourseStatus = "published"
	CourseUnderReview CourseStatus = "under-review"
	CourseApproved    CourseStatus = "approved"
)

type EventStatus string

// Event statuses
const (
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
)

const (
	defaultDuration = "0 hours"
	defaultTime     = "10:00 AM"
	defaultLocation = "TBD"
	defaultCapacity = 50
	defaultPriority = "Normal"
	defaultAudience = "All Students"
)

type Course struct {
	ID           string       `json:"id" db:"id"`
	Title        string       `json:"title" db:"title"`
	Description  string       `json:"description" db:"description"`
	Category     string       `json:"category" db:"category"`
	Duration     string       `json:"duration" db:"duration"`
	Price        float64      `json:"price" db:"price"`
	Difficulty   string       `json:"difficulty" db:"difficulty"`
	InstructorID string       `json:"instructor_id" db:"instructor_id"`
	Status       CourseStatus `json:"status" db:"status"`
	TotalLessons int          `json:"total_lessons" db:"total_lessons"`
	Rating       float64      `json:"rating" db:"rating"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// NewCourse is what a teacher submits. Status may only be draft or published.
type NewCourse struct {
	Title        string       `json:"title" validate:"required,notblank"`
	Description  string       `json:"description" validate:"required,notblank"`
	Category     string       `json:"category"`
	Duration     string       `json:"duration"`
	Price        float64      `json:"price" validate:"gte=0"`
	Difficulty   string       `json:"difficulty" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	Status       CourseStatus `json:"status" validate:"omitempty,oneof=draft published"`
	TotalLessons int          `json:"total_lessons" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	nc.Duration = core.CleanString(nc.Duration)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.Duration == "" {
		nc.Duration = defaultDuration
	}
	if nc.Difficulty == "" {
		nc.Difficulty = "Beginner"
	}
	if nc.Status == "" {
		nc.Status = CourseDraft
	}
	return nil
}

type CourseStatusUpdate struct {
	Status CourseStatus `json:"status" validate:"required,oneof=draft published under-review approved"`
}

// CourseFilter applies AND on its set fields.
type CourseFilter struct {
	InstructorID string
	Statuses     []CourseStatus
}

type Enrollment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	Progress  int       `json:"progress" db:"progress"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Course    Course    `json:"course" db:"course"`
}

type NewEnrollment struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

type Event struct {
	ID          string      `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	Date        string      `json:"date" db:"date"` // YYYY-MM-DD
	Time        string      `json:"time" db:"time"`
	Location    string      `json:"location" db:"location"`
	Capacity    int         `json:"capacity" db:"capacity"`
	Type        string      `json:"type" db:"type"`
	Status      EventStatus `json:"status" db:"status"`
	Registered  int         `json:"registered" db:"registered"`
	Organizer   string      `json:"organizer" db:"organizer"`
	CreatedBy   string      `json:"created_by" db:"created_by"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

type NewEvent struct {
	Title       string `json:"title" validate:"required,notblank"`
	Description string `json:"description" validate:"required,notblank"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Capacity    int    `json:"capacity" validate:"gte=0"`
	Type        string `json:"type" validate:"omitempty,oneof=workshop seminar bootcamp masterclass networking"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Date = core.CleanString(ne.Date)
	ne.Time = core.CleanString(ne.Time)
	ne.Location = core.CleanString(ne.Location)
	ne.Type = core.CleanString(ne.Type, true /* lower */)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	if ne.Time == "" {
		ne.Time = defaultTime
	}
	if ne.Location == "" {
		ne.Location = defaultLocation
	}
	if ne.Capacity == 0 {
		ne.Capacity = defaultCapacity
	}
	if ne.Type == "" {
		ne.Type = "workshop"
	}
	return nil
}

// EventFilter lists every event when empty.
type EventFilter struct {
	Statuses []EventStatus
}

type Announcement struct {
	ID             string    `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	Content        string    `json:"content" db:"content"`
	Priority       string    `json:"priority" db:"priority"`
	TargetAudience string    `json:"target_audience" db:"target_audience"`
	CreatedBy      string    `json:"created_by" db:"created_by"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	ViewCount      int       `json:"view_count" db:"view_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type NewAnnouncement struct {
	Title          string `json:"title" validate:"required,notblank"`
	Content        string `json:"content" validate:"required,notblank"`
	Priority       string `json:"priority" validate:"omitempty,oneof=Normal Medium High"`
	TargetAudience string `json:"target_audience" validate:"omitempty,oneof='All Students' 'My Students' 'Specific Course'"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Content = core.CleanString(na.Content)
	na.TargetAudience = core.CleanString(na.TargetAudience)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.Priority == "" {
		na.Priority = defaultPriority
	}
	if na.TargetAudience == "" {
		na.TargetAudience = defaultAudience
	}
	return nil
}

// AnnouncementFilter applies AND on its set fields.
type AnnouncementFilter struct {
	CreatedBy  string
	ActiveOnly bool
}
