package inmemdb

import (
	"sync"

	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/user"
)

type (
	DB struct {
		user         *userTable
		profile      *profileTable
		pushToken    *pushTokenTable
		course       *courseTable
		enrollment   *enrollmentTable
		event        *eventTable
		announcement *announcementTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	profileTable struct {
		sync.RWMutex
		table map[string]*user.Profile
	}

	pushTokenTable struct {
		sync.RWMutex
		table map[string]*user.PushToken
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*learning.Course
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*learning.Enrollment
	}

	eventTable struct {
		sync.RWMutex
		table map[string]*learning.Event
	}

	announcementTable struct {
		sync.RWMutex
		table map[string]*learning.Announcement
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		profile:      &profileTable{table: make(map[string]*user.Profile)},
		pushToken:    &pushTokenTable{table: make(map[string]*user.PushToken)},
		course:       &courseTable{table: make(map[string]*learning.Course)},
		enrollment:   &enrollmentTable{table: make(map[string]*learning.Enrollment)},
		event:        &eventTable{table: make(map[string]*learning.Event)},
		announcement: &announcementTable{table: make(map[string]*learning.Announcement)},
	}
}
