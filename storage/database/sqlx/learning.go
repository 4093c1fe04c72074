package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core/learning"
)

const (
	courseColumns       = `id, title, description, category, duration, price, difficulty, instructor_id, status, total_lessons, rating, created_at, updated_at`
	eventColumns        = `id, title, description, date, time, location, capacity, type, status, registered, organizer, created_by, created_at`
	announcementColumns = `id, title, content, priority, target_audience, created_by, is_active, view_count, created_at`
)

type learningRepository struct {
	db *sqlx.DB
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db *sqlx.DB) learning.Repository {
	return &learningRepository{db: db}
}

// affected maps an UPDATE or DELETE that touched no row to notFound.
func affected(res sql.Result, notFound error) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

// Courses

func (repo *learningRepository) CreateCourse(ctx context.Context, crs learning.Course) (learning.Course, error) {
	const q = `
		INSERT INTO courses (` + courseColumns + `)
		VALUES (:id, :title, :description, :category, :duration, :price, :difficulty, :instructor_id, :status,
		        :total_lessons, :rating, :created_at, :updated_at)`

	if _, err := repo.db.NamedExecContext(ctx, q, crs); err != nil {
		return learning.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo *learningRepository) GetCourse(ctx context.Context, id string) (learning.Course, error) {
	var crs learning.Course
	const q = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	if err := repo.db.GetContext(ctx, &crs, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return learning.Course{}, learning.ErrCourseNotFound
		}
		return learning.Course{}, errors.Wrap(err, "selecting course")
	}
	return crs, nil
}

func (repo *learningRepository) UpdateCourse(ctx context.Context, crs learning.Course) (learning.Course, error) {
	const q = `
		UPDATE courses
		SET title = :title, description = :description, category = :category, duration = :duration,
		    price = :price, difficulty = :difficulty, status = :status, total_lessons = :total_lessons,
		    rating = :rating, updated_at = :updated_at
		WHERE id = :id`

	res, err := repo.db.NamedExecContext(ctx, q, crs)
	if err != nil {
		return learning.Course{}, errors.Wrap(err, "updating course")
	}
	if err = affected(res, learning.ErrCourseNotFound); err != nil {
		return learning.Course{}, err
	}
	return crs, nil
}

func (repo *learningRepository) QueryCourses(ctx context.Context, filter learning.CourseFilter) ([]learning.Course, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conds = append(conds, "instructor_id = $"+strconv.Itoa(len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, "status = ANY($"+strconv.Itoa(len(args))+")")
	}

	q := `SELECT ` + courseColumns + ` FROM courses`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	courses := make([]learning.Course, 0)
	if err := repo.db.SelectContext(ctx, &courses, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	return courses, nil
}

// Enrollments

func (repo *learningRepository) CreateEnrollment(ctx context.Context, enr learning.Enrollment) (learning.Enrollment, error) {
	const q = `
		INSERT INTO enrollments (id, user_id, course_id, progress, created_at)
		VALUES (:id, :user_id, :course_id, :progress, :created_at)`

	if _, err := repo.db.NamedExecContext(ctx, q, enr); err != nil {
		if isUniqueViolation(err) {
			return learning.Enrollment{}, learning.ErrAlreadyEnrolled
		}
		return learning.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo *learningRepository) QueryEnrollments(ctx context.Context, userID string) ([]learning.Enrollment, error) {
	const q = `
		SELECT e.id, e.user_id, e.course_id, e.progress, e.created_at,
		       c.id "course.id", c.title "course.title", c.description "course.description",
		       c.category "course.category", c.duration "course.duration", c.price "course.price",
		       c.difficulty "course.difficulty", c.instructor_id "course.instructor_id", c.status "course.status",
		       c.total_lessons "course.total_lessons", c.rating "course.rating",
		       c.created_at "course.created_at", c.updated_at "course.updated_at"
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1
		ORDER BY e.created_at DESC`

	enrs := make([]learning.Enrollment, 0)
	if err := repo.db.SelectContext(ctx, &enrs, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	return enrs, nil
}

// Events

func (repo *learningRepository) CreateEvent(ctx context.Context, evt learning.Event) (learning.Event, error) {
	const q = `
		INSERT INTO events (` + eventColumns + `)
		VALUES (:id, :title, :description, :date, :time, :location, :capacity, :type, :status, :registered,
		        :organizer, :created_by, :created_at)`

	if _, err := repo.db.NamedExecContext(ctx, q, evt); err != nil {
		return learning.Event{}, errors.Wrap(err, "inserting event")
	}
	return evt, nil
}

func (repo *learningRepository) GetEvent(ctx context.Context, id string) (learning.Event, error) {
	var evt learning.Event
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if err := repo.db.GetContext(ctx, &evt, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return learning.Event{}, learning.ErrEventNotFound
		}
		return learning.Event{}, errors.Wrap(err, "selecting event")
	}
	return evt, nil
}

func (repo *learningRepository) UpdateEvent(ctx context.Context, evt learning.Event) (learning.Event, error) {
	const q = `
		UPDATE events
		SET title = :title, description = :description, date = :date, time = :time, location = :location,
		    capacity = :capacity, type = :type, status = :status, registered = :registered, organizer = :organizer
		WHERE id = :id`

	res, err := repo.db.NamedExecContext(ctx, q, evt)
	if err != nil {
		return learning.Event{}, errors.Wrap(err, "updating event")
	}
	if err = affected(res, learning.ErrEventNotFound); err != nil {
		return learning.Event{}, err
	}
	return evt, nil
}

func (repo *learningRepository) DeleteEvent(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return affected(res, learning.ErrEventNotFound)
}

func (repo *learningRepository) QueryEvents(ctx context.Context, filter learning.EventFilter) ([]learning.Event, error) {
	var args []interface{}
	q := `SELECT ` + eventColumns + ` FROM events`
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		q += " WHERE status = ANY($1)"
	}
	q += " ORDER BY date ASC, created_at ASC"

	events := make([]learning.Event, 0)
	if err := repo.db.SelectContext(ctx, &events, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting events")
	}
	return events, nil
}

// Announcements

func (repo *learningRepository) CreateAnnouncement(ctx context.Context, ann learning.Announcement) (learning.Announcement, error) {
	const q = `
		INSERT INTO announcements (` + announcementColumns + `)
		VALUES (:id, :title, :content, :priority, :target_audience, :created_by, :is_active, :view_count, :created_at)`

	if _, err := repo.db.NamedExecContext(ctx, q, ann); err != nil {
		return learning.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return ann, nil
}

func (repo *learningRepository) GetAnnouncement(ctx context.Context, id string) (learning.Announcement, error) {
	var ann learning.Announcement
	const q = `SELECT ` + announcementColumns + ` FROM announcements WHERE id = $1`
	if err := repo.db.GetContext(ctx, &ann, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return learning.Announcement{}, learning.ErrAnnouncementNotFound
		}
		return learning.Announcement{}, errors.Wrap(err, "selecting announcement")
	}
	return ann, nil
}

func (repo *learningRepository) UpdateAnnouncement(ctx context.Context, ann learning.Announcement) (learning.Announcement, error) {
	const q = `
		UPDATE announcements
		SET title = :title, content = :content, priority = :priority, target_audience = :target_audience,
		    is_active = :is_active, view_count = :view_count
		WHERE id = :id`

	res, err := repo.db.NamedExecContext(ctx, q, ann)
	if err != nil {
		return learning.Announcement{}, errors.Wrap(err, "updating announcement")
	}
	if err = affected(res, learning.ErrAnnouncementNotFound); err != nil {
		return learning.Announcement{}, err
	}
	return ann, nil
}

func (repo *learningRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return affected(res, learning.ErrAnnouncementNotFound)
}

func (repo *learningRepository) QueryAnnouncements(ctx context.Context, filter learning.AnnouncementFilter) ([]learning.Announcement, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conds = append(conds, "created_by = $"+strconv.Itoa(len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}

	q := `SELECT ` + announcementColumns + ` FROM announcements`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	anns := make([]learning.Announcement, 0)
	if err := repo.db.SelectContext(ctx, &anns, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting announcements")
	}
	return anns, nil
}
