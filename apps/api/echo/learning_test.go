package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/user"
	testutil "github.com/loopverse/campus/tests"
)

func (f *fixture) createCourse(t *testing.T, instructor user.User, title string, status learning.CourseStatus) learning.Course {
	t.Helper()
	now := time.Now().UTC()
	crs, err := f.learn.CreateCourse(context.Background(), learning.Course{
		ID:           uuid.NewString(),
		Title:        title,
		InstructorID: instructor.ID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	time.Sleep(time.Millisecond) // distinct created_at
	return crs
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v))
}

func courseTitles(courses []learning.Course) []string {
	titles := make([]string, 0, len(courses))
	for _, c := range courses {
		titles = append(titles, c.Title)
	}
	return titles
}

func TestLearningAPI_createCourse(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)

	tests := []httpTest{
		{
			name:     "teacher",
			token:    f.token(t, uma),
			body:     []byte(`{"title":" Go 101 ","description":"Channels and all","price":10}`),
			wantCode: http.StatusCreated,
		},
		{
			name:     "missing title",
			token:    f.token(t, uma),
			body:     []byte(`{"description":"no title"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title":"this field is required"}`),
		},
		{
			name:     "teacher cannot self-approve",
			token:    f.token(t, uma),
			body:     []byte(`{"title":"Go 102","description":"More","status":"approved"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "student",
			token:    f.token(t, vic),
			body:     []byte(`{"title":"Go 101","description":"Channels"}`),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "no token",
			body:     []byte(`{"title":"Go 101","description":"Channels"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/rest/v1/courses"
			checkCodeAndData(t, tt, f.do(tt))
		})
	}

	courses, err := f.learn.QueryCourses(context.Background(), learning.CourseFilter{InstructorID: uma.ID})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Go 101", courses[0].Title)
	assert.Equal(t, learning.CourseDraft, courses[0].Status)
	assert.Equal(t, "Beginner", courses[0].Difficulty)
	assert.Equal(t, "0 hours", courses[0].Duration)
}

func TestLearningAPI_queryCourses(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	tom := testutil.CreateUser(t, f.repo, "Tom", "tom@school.edu", testPassword, user.RoleTeacher, true)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)
	admin := testutil.CreateUser(t, f.repo, "Ada", "ada@school.edu", testPassword, user.RoleAdmin, true)
	f.createCourse(t, uma, "Uma draft", learning.CourseDraft)
	f.createCourse(t, uma, "Uma approved", learning.CourseApproved)
	f.createCourse(t, tom, "Tom approved", learning.CourseApproved)

	tests := []struct {
		name  string
		path  string
		token string
		want  []string
	}{
		{name: "student sees the approved catalog", path: "/rest/v1/courses", token: f.token(t, vic), want: []string{"Tom approved", "Uma approved"}},
		{name: "student status param ignored", path: "/rest/v1/courses?status=draft", token: f.token(t, vic), want: []string{"Tom approved", "Uma approved"}},
		{name: "teacher sees own", path: "/rest/v1/courses", token: f.token(t, uma), want: []string{"Uma approved", "Uma draft"}},
		{name: "teacher by status", path: "/rest/v1/courses?status=draft", token: f.token(t, uma), want: []string{"Uma draft"}},
		{name: "admin sees all", path: "/rest/v1/courses", token: f.token(t, admin), want: []string{"Tom approved", "Uma approved", "Uma draft"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(httpTest{method: http.MethodGet, path: tt.path, token: tt.token})
			require.Equal(t, http.StatusOK, rec.Code)
			var courses []learning.Course
			decode(t, rec.Body.Bytes(), &courses)
			assert.Equal(t, tt.want, courseTitles(courses))
		})
	}
}

func TestLearningAPI_retrieveCourse(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)
	draft := f.createCourse(t, uma, "Draft", learning.CourseDraft)
	approved := f.createCourse(t, uma, "Approved", learning.CourseApproved)

	tests := []httpTest{
		{name: "student approved", path: "/rest/v1/courses/" + approved.ID, token: f.token(t, vic), wantCode: http.StatusOK, wantData: marshallObj(t, approved)},
		{name: "student draft", path: "/rest/v1/courses/" + draft.ID, token: f.token(t, vic), wantCode: http.StatusNotFound},
		{name: "instructor draft", path: "/rest/v1/courses/" + draft.ID, token: f.token(t, uma), wantCode: http.StatusOK, wantData: marshallObj(t, draft)},
		{name: "missing", path: "/rest/v1/courses/" + uuid.NewString(), token: f.token(t, uma), wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodGet
			checkCodeAndData(t, tt, f.do(tt))
		})
	}
}

func TestLearningAPI_updateCourseStatus(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	tom := testutil.CreateUser(t, f.repo, "Tom", "tom@school.edu", testPassword, user.RoleTeacher, true)
	admin := testutil.CreateUser(t, f.repo, "Ada", "ada@school.edu", testPassword, user.RoleAdmin, true)
	crs := f.createCourse(t, uma, "Go 101", learning.CourseDraft)
	path := "/rest/v1/courses/" + crs.ID

	tests := []struct {
		httpTest
		wantStatus learning.CourseStatus
	}{
		{httpTest: httpTest{name: "instructor publishes", token: f.token(t, uma), body: []byte(`{"status":"published"}`), wantCode: http.StatusOK}, wantStatus: learning.CoursePublished},
		{httpTest: httpTest{name: "instructor cannot approve", token: f.token(t, uma), body: []byte(`{"status":"approved"}`), wantCode: http.StatusForbidden}, wantStatus: learning.CoursePublished},
		{httpTest: httpTest{name: "other teacher", token: f.token(t, tom), body: []byte(`{"status":"draft"}`), wantCode: http.StatusNotFound}, wantStatus: learning.CoursePublished},
		{httpTest: httpTest{name: "unknown status", token: f.token(t, admin), body: []byte(`{"status":"archived"}`), wantCode: http.StatusBadRequest}, wantStatus: learning.CoursePublished},
		{httpTest: httpTest{name: "admin approves", token: f.token(t, admin), body: []byte(`{"status":"approved"}`), wantCode: http.StatusOK}, wantStatus: learning.CourseApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPatch, path
			checkCodeAndData(t, tt.httpTest, f.do(tt.httpTest))

			got, err := f.learn.GetCourse(context.Background(), crs.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

func TestLearningAPI_enroll(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)
	draft := f.createCourse(t, uma, "Draft", learning.CourseDraft)
	approved := f.createCourse(t, uma, "Approved", learning.CourseApproved)

	tests := []httpTest{
		{name: "approved course", token: f.token(t, vic), body: marshallObj(t, learning.NewEnrollment{CourseID: approved.ID}), wantCode: http.StatusCreated},
		{name: "twice", token: f.token(t, vic), body: marshallObj(t, learning.NewEnrollment{CourseID: approved.ID}), wantCode: http.StatusBadRequest, wantData: []byte(`{"course_id":"already enrolled in this course"}`)},
		{name: "draft course", token: f.token(t, vic), body: marshallObj(t, learning.NewEnrollment{CourseID: draft.ID}), wantCode: http.StatusBadRequest, wantData: []byte(`{"course_id":"course is not open for enrollment"}`)},
		{name: "unknown course", token: f.token(t, vic), body: marshallObj(t, learning.NewEnrollment{CourseID: uuid.NewString()}), wantCode: http.StatusBadRequest, wantData: []byte(`{"course_id":"course not found"}`)},
		{name: "teacher", token: f.token(t, uma), body: marshallObj(t, learning.NewEnrollment{CourseID: approved.ID}), wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/rest/v1/enrollments"
			checkCodeAndData(t, tt, f.do(tt))
		})
	}

	rec := f.do(httpTest{method: http.MethodGet, path: "/rest/v1/enrollments", token: f.token(t, vic)})
	require.Equal(t, http.StatusOK, rec.Code)
	var enrs []learning.Enrollment
	decode(t, rec.Body.Bytes(), &enrs)
	require.Len(t, enrs, 1)
	assert.Equal(t, approved.ID, enrs[0].CourseID)
	assert.Equal(t, "Approved", enrs[0].Course.Title)
}

func TestLearningAPI_events(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.repo, "Ada", "ada@school.edu", testPassword, user.RoleAdmin, true)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)

	create := []httpTest{
		{name: "later", token: f.token(t, admin), body: []byte(`{"title":"Hack night","description":"Build","date":"2026-12-01","type":"Bootcamp"}`), wantCode: http.StatusCreated},
		{name: "sooner", token: f.token(t, admin), body: []byte(`{"title":"Go meetup","description":"Talks","date":"2026-11-01"}`), wantCode: http.StatusCreated},
		{name: "bad date", token: f.token(t, admin), body: []byte(`{"title":"X","description":"Y","date":"next week"}`), wantCode: http.StatusBadRequest},
		{name: "student", token: f.token(t, vic), body: []byte(`{"title":"X","description":"Y","date":"2026-11-01"}`), wantCode: http.StatusForbidden},
	}
	ids := make(map[string]string)
	for _, tt := range create {
		t.Run("create "+tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/rest/v1/events"
			rec := f.do(tt)
			checkCodeAndData(t, tt, rec)
			if rec.Code == http.StatusCreated {
				var evt learning.Event
				decode(t, rec.Body.Bytes(), &evt)
				ids[tt.name] = evt.ID
			}
		})
	}

	list := func(t *testing.T, usr user.User) []learning.Event {
		rec := f.do(httpTest{method: http.MethodGet, path: "/rest/v1/events", token: f.token(t, usr)})
		require.Equal(t, http.StatusOK, rec.Code)
		var events []learning.Event
		decode(t, rec.Body.Bytes(), &events)
		return events
	}

	events := list(t, vic)
	require.Len(t, events, 2)
	assert.Equal(t, "Go meetup", events[0].Title)
	assert.Equal(t, "10:00 AM", events[0].Time)
	assert.Equal(t, "TBD", events[0].Location)
	assert.Equal(t, 50, events[0].Capacity)
	assert.Equal(t, "bootcamp", events[1].Type)

	tests := []httpTest{
		{name: "student cannot cancel", method: http.MethodPatch, path: "/rest/v1/events/" + ids["later"] + "/cancel", token: f.token(t, vic), wantCode: http.StatusForbidden},
		{name: "cancel", method: http.MethodPatch, path: "/rest/v1/events/" + ids["later"] + "/cancel", token: f.token(t, admin), wantCode: http.StatusOK},
		{name: "delete", method: http.MethodDelete, path: "/rest/v1/events/" + ids["sooner"], token: f.token(t, admin), wantCode: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: "/rest/v1/events/" + ids["sooner"], token: f.token(t, admin), wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(tt))
		})
	}

	assert.Empty(t, list(t, vic))
	events = list(t, admin)
	require.Len(t, events, 1)
	assert.Equal(t, learning.EventCancelled, events[0].Status)
}

func TestLearningAPI_announcements(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	tom := testutil.CreateUser(t, f.repo, "Tom", "tom@school.edu", testPassword, user.RoleTeacher, true)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)
	testutil.CreateProfile(t, f.repo, vic)

	create := func(t *testing.T, usr user.User, body string) learning.Announcement {
		rec := f.do(httpTest{method: http.MethodPost, path: "/rest/v1/announcements", token: f.token(t, usr), body: []byte(body)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ann learning.Announcement
		decode(t, rec.Body.Bytes(), &ann)
		return ann
	}
	first := create(t, uma, `{"title":"Quiz","content":"Friday"}`)
	time.Sleep(time.Millisecond)
	second := create(t, tom, `{"title":"Lab","content":"Room 4B","priority":"High","target_audience":"My Students"}`)
	assert.Equal(t, "Normal", first.Priority)
	assert.Equal(t, "All Students", first.TargetAudience)
	assert.True(t, first.IsActive)

	bad := f.do(httpTest{method: http.MethodPost, path: "/rest/v1/announcements", token: f.token(t, uma), body: []byte(`{"title":"X","content":"Y","priority":"Urgent"}`)})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	denied := f.do(httpTest{method: http.MethodPost, path: "/rest/v1/announcements", token: f.token(t, vic), body: []byte(`{"title":"X","content":"Y"}`)})
	assert.Equal(t, http.StatusForbidden, denied.Code)

	tests := []httpTest{
		{name: "other author cannot toggle", method: http.MethodPatch, path: "/rest/v1/announcements/" + first.ID + "/toggle", token: f.token(t, tom), wantCode: http.StatusNotFound},
		{name: "author toggles", method: http.MethodPatch, path: "/rest/v1/announcements/" + first.ID + "/toggle", token: f.token(t, uma), wantCode: http.StatusOK},
		{name: "student cannot delete", method: http.MethodDelete, path: "/rest/v1/announcements/" + second.ID, token: f.token(t, vic), wantCode: http.StatusForbidden},
		{name: "missing", method: http.MethodDelete, path: "/rest/v1/announcements/" + uuid.NewString(), token: f.token(t, uma), wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(tt))
		})
	}

	titles := func(t *testing.T, usr user.User) []string {
		rec := f.do(httpTest{method: http.MethodGet, path: "/rest/v1/announcements", token: f.token(t, usr)})
		require.Equal(t, http.StatusOK, rec.Code)
		var anns []learning.Announcement
		decode(t, rec.Body.Bytes(), &anns)
		res := make([]string, 0, len(anns))
		for _, a := range anns {
			res = append(res, a.Title)
		}
		return res
	}
	assert.Equal(t, []string{"Lab"}, titles(t, vic))
	assert.Equal(t, []string{"Quiz"}, titles(t, uma))

	rec := f.do(httpTest{method: http.MethodDelete, path: "/rest/v1/announcements/" + first.ID, token: f.token(t, uma)})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, titles(t, uma))
}
