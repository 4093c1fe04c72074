package inmemdb

import (
	"context"
	"sort"

	"github.com/loopverse/campus/core/learning"
)

type learningRepository struct {
	db *DB
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db *DB) learning.Repository {
	return &learningRepository{db: db}
}

// Courses

func (repo *learningRepository) CreateCourse(_ context.Context, crs learning.Course) (learning.Course, error) {
	tbl := repo.db.course
	tbl.Lock()
	defer tbl.Unlock()

	tbl.table[crs.ID] = &crs
	return crs, nil
}

func (repo *learningRepository) GetCourse(_ context.Context, id string) (learning.Course, error) {
	tbl := repo.db.course
	tbl.RLock()
	defer tbl.RUnlock()

	if crs, ok := tbl.table[id]; ok {
		return *crs, nil
	}
	return learning.Course{}, learning.ErrCourseNotFound
}

func (repo *learningRepository) UpdateCourse(_ context.Context, crs learning.Course) (learning.Course, error) {
	tbl := repo.db.course
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[crs.ID]; !ok {
		return learning.Course{}, learning.ErrCourseNotFound
	}
	tbl.table[crs.ID] = &crs
	return crs, nil
}

func (repo *learningRepository) QueryCourses(_ context.Context, filter learning.CourseFilter) ([]learning.Course, error) {
	tbl := repo.db.course
	tbl.RLock()
	defer tbl.RUnlock()

	courses := make([]learning.Course, 0, len(tbl.table))
	for _, crs := range tbl.table {
		if filter.InstructorID != "" && crs.InstructorID != filter.InstructorID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasCourseStatus(crs.Status, filter.Statuses) {
			continue
		}
		courses = append(courses, *crs)
	}
	sort.SliceStable(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func hasCourseStatus(status learning.CourseStatus, statuses []learning.CourseStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Enrollments

func (repo *learningRepository) CreateEnrollment(_ context.Context, enr learning.Enrollment) (learning.Enrollment, error) {
	tbl := repo.db.enrollment
	tbl.Lock()
	defer tbl.Unlock()

	for _, e := range tbl.table {
		if e.UserID == enr.UserID && e.CourseID == enr.CourseID {
			return learning.Enrollment{}, learning.ErrAlreadyEnrolled
		}
	}
	enr.Course = learning.Course{}
	tbl.table[enr.ID] = &enr
	return enr, nil
}

func (repo *learningRepository) QueryEnrollments(_ context.Context, userID string) ([]learning.Enrollment, error) {
	tbl := repo.db.enrollment
	tbl.RLock()
	defer tbl.RUnlock()

	courses := repo.db.course
	courses.RLock()
	defer courses.RUnlock()

	enrs := make([]learning.Enrollment, 0)
	for _, e := range tbl.table {
		if e.UserID != userID {
			continue
		}
		enr := *e
		if crs, ok := courses.table[enr.CourseID]; ok {
			enr.Course = *crs
		}
		enrs = append(enrs, enr)
	}
	sort.SliceStable(enrs, func(i, j int) bool { return enrs[i].CreatedAt.After(enrs[j].CreatedAt) })
	return enrs, nil
}

// Events

func (repo *learningRepository) CreateEvent(_ context.Context, evt learning.Event) (learning.Event, error) {
	tbl := repo.db.event
	tbl.Lock()
	defer tbl.Unlock()

	tbl.table[evt.ID] = &evt
	return evt, nil
}

func (repo *learningRepository) GetEvent(_ context.Context, id string) (learning.Event, error) {
	tbl := repo.db.event
	tbl.RLock()
	defer tbl.RUnlock()

	if evt, ok := tbl.table[id]; ok {
		return *evt, nil
	}
	return learning.Event{}, learning.ErrEventNotFound
}

func (repo *learningRepository) UpdateEvent(_ context.Context, evt learning.Event) (learning.Event, error) {
	tbl := repo.db.event
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[evt.ID]; !ok {
		return learning.Event{}, learning.ErrEventNotFound
	}
	tbl.table[evt.ID] = &evt
	return evt, nil
}

func (repo *learningRepository) DeleteEvent(_ context.Context, id string) error {
	tbl := repo.db.event
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[id]; !ok {
		return learning.ErrEventNotFound
	}
	delete(tbl.table, id)
	return nil
}

func (repo *learningRepository) QueryEvents(_ context.Context, filter learning.EventFilter) ([]learning.Event, error) {
	tbl := repo.db.event
	tbl.RLock()
	defer tbl.RUnlock()

	events := make([]learning.Event, 0, len(tbl.table))
	for _, evt := range tbl.table {
		if len(filter.Statuses) > 0 && !hasEventStatus(evt.Status, filter.Statuses) {
			continue
		}
		events = append(events, *evt)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date == events[j].Date {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].Date < events[j].Date
	})
	return events, nil
}

func hasEventStatus(status learning.EventStatus, statuses []learning.EventStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Announcements

func (repo *learningRepository) CreateAnnouncement(_ context.Context, ann learning.Announcement) (learning.Announcement, error) {
	tbl := repo.db.announcement
	tbl.Lock()
	defer tbl.Unlock()

	tbl.table[ann.ID] = &ann
	return ann, nil
}

func (repo *learningRepository) GetAnnouncement(_ context.Context, id string) (learning.Announcement, error) {
	tbl := repo.db.announcement
	tbl.RLock()
	defer tbl.RUnlock()

	if ann, ok := tbl.table[id]; ok {
		return *ann, nil
	}
	return learning.Announcement{}, learning.ErrAnnouncementNotFound
}

func (repo *learningRepository) UpdateAnnouncement(_ context.Context, ann learning.Announcement) (learning.Announcement, error) {
	tbl := repo.db.announcement
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[ann.ID]; !ok {
		return learning.Announcement{}, learning.ErrAnnouncementNotFound
	}
	tbl.table[ann.ID] = &ann
	return ann, nil
}

func (repo *learningRepository) DeleteAnnouncement(_ context.Context, id string) error {
	tbl := repo.db.announcement
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[id]; !ok {
		return learning.ErrAnnouncementNotFound
	}
	delete(tbl.table, id)
	return nil
}

func (repo *learningRepository) QueryAnnouncements(_ context.Context, filter learning.AnnouncementFilter) ([]learning.Announcement, error) {
	tbl := repo.db.announcement
	tbl.RLock()
	defer tbl.RUnlock()

	anns := make([]learning.Announcement, 0, len(tbl.table))
	for _, ann := range tbl.table {
		if filter.CreatedBy != "" && ann.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.ActiveOnly && !ann.IsActive {
			continue
		}
		anns = append(anns, *ann)
	}
	sort.SliceStable(anns, func(i, j int) bool { return anns[i].CreatedAt.After(anns[j].CreatedAt) })
	return anns, nil
}
