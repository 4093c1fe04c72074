package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/session/sessiontest"
	"github.com/loopverse/campus/core/user"
	pushsvc "github.com/loopverse/campus/services/push"
	kvstore "github.com/loopverse/campus/storage/kv"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()

	m, err := session.NewManager(session.Deps{
		Auth:       sessiontest.NewAuth(),
		Profiles:   sessiontest.NewProfiles(),
		Storage:    kvstore.NewMemoryStore(),
		Logger:     &sessiontest.Logger{},
		Identities: session.DemoIdentities(),
	}, session.Options{Fallback: core.FallbackUnavailable})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Close)
	m.Bootstrap(context.Background())

	out := new(bytes.Buffer)
	return &commandLine{m: m, out: out}, out
}

func withPassword(pwd string) {
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
}

func Test_commandLine_run(t *testing.T) {
	ctx := context.Background()
	cli, out := setup(t)

	tests := []struct {
		name    string
		args    []string // without program name
		pwd     string
		wantErr error
		wantOut string
	}{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "status signed out", args: []string{"status"}, wantOut: "Signed out."},
		{name: "signin without email", args: []string{"signin"}, wantErr: errHelp},
		{name: "signin without password", args: []string{"signin", "-email", "admin@loopverse.com"}, wantErr: errHelp},
		{name: "signin rejected", args: []string{"signin", "-email", "who@school.edu"}, pwd: "nope", wantErr: session.ErrInvalidCredentials},
		{name: "signin demo other case", args: []string{"signin", "-email", "Admin@LoopVerse.com"}, pwd: "password", wantErr: session.ErrInvalidCredentials},
		{name: "signin demo", args: []string{"signin", "-email", "admin@loopverse.com"}, pwd: "password", wantOut: "Signed in as Admin User <admin@loopverse.com> (demo session)"},
		{name: "admin screen", args: []string{"open", session.AllowedRoutes(user.RoleAdmin)[1]}, wantOut: "allowed"},
		{name: "teacher screen", args: []string{"open", session.RouteTeacherDashboard}, wantOut: "denied, go to " + session.RouteAdminDashboard},
		{name: "theme without value", args: []string{"theme"}, wantErr: errHelp},
		{name: "dark theme", args: []string{"theme", "dark"}},
		{name: "status dark", args: []string{"status"}, wantOut: "Theme: dark"},
		{name: "invalid role", args: []string{"role", "janitor"}, wantErr: session.ErrInvalidRole},
		{name: "select role", args: []string{"role", "teacher"}},
		{name: "forgot unsupported", args: []string{"forgot", "-email", "admin@loopverse.com"}, wantErr: session.ErrNotSupported},
		{name: "listen unsupported", args: []string{"listen"}, wantErr: session.ErrNotSupported},
		{name: "courses unsupported", args: []string{"courses"}, wantErr: session.ErrNotSupported},
		{name: "signout", args: []string{"signout"}, wantOut: "Signed out."},
		{name: "status after signout", args: []string{"status"}, wantOut: "Signed out."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			withPassword(tt.pwd)

			err := cli.run(ctx, append([]string{"client"}, tt.args...))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("cli.run() unexpected error = %v", err)
			}
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}

	assert.True(t, cli.m.DarkMode())
}

type fakeCampus struct {
	courses  []learning.Course
	enrolled []string
}

func (c *fakeCampus) Courses(context.Context) ([]learning.Course, error) { return c.courses, nil }

func (c *fakeCampus) Enroll(_ context.Context, courseID string) (learning.Enrollment, error) {
	for _, crs := range c.courses {
		if crs.ID == courseID {
			c.enrolled = append(c.enrolled, courseID)
			return learning.Enrollment{CourseID: courseID, Course: crs}, nil
		}
	}
	return learning.Enrollment{}, session.ErrRejected
}

func (c *fakeCampus) Events(context.Context) ([]learning.Event, error) {
	return []learning.Event{{Title: "Go meetup", Date: "2026-11-01", Time: "10:00 AM", Location: "Hall A"}}, nil
}

func (c *fakeCampus) Announcements(context.Context) ([]learning.Announcement, error) { return nil, nil }

func Test_commandLine_campus(t *testing.T) {
	ctx := context.Background()
	cli, out := setup(t)
	fc := &fakeCampus{courses: []learning.Course{{ID: "c-1", Title: "Go 101", Difficulty: "Beginner", Status: learning.CourseApproved}}}
	cli.campus = fc

	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantOut string
	}{
		{name: "courses", args: []string{"courses"}, wantOut: "c-1  Go 101 [Beginner, approved]"},
		{name: "enroll without id", args: []string{"enroll"}, wantErr: errHelp},
		{name: "enroll", args: []string{"enroll", "c-1"}, wantOut: "Enrolled in Go 101."},
		{name: "enroll unknown", args: []string{"enroll", "c-2"}, wantErr: session.ErrRejected},
		{name: "events", args: []string{"events"}, wantOut: "2026-11-01 10:00 AM  Go meetup @ Hall A"},
		{name: "no announcements", args: []string{"announcements"}, wantOut: "No announcements."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(ctx, append([]string{"client"}, tt.args...))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if assert.NoError(t, err) {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
	assert.Equal(t, []string{"c-1"}, fc.enrolled)
}

// slowRegistrar hands out the user id as push token after a round trip.
type slowRegistrar struct {
	baseURL string
	calls   int32
}

func (r *slowRegistrar) RegisterPushToken(context.Context) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	time.Sleep(20 * time.Millisecond)
	return "u-9", nil
}

func (r *slowRegistrar) BaseURL() string { return r.baseURL }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func Test_commandLine_listen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := &sessiontest.Logger{}
	hub := pushsvc.NewHub(logger, core.PushConfig{PingInterval: time.Second})
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the token is the user id
		_ = hub.ServeWS(w, r, r.URL.Query().Get("token"))
	}))
	defer srv.Close()

	store := kvstore.NewMemoryStore()
	_ = store.SetItem(ctx, session.UserKey, `{"id":"u-9","email":"tara@school.edu","name":"Tara","source":"remote"}`)
	_ = store.SetItem(ctx, session.UserRoleKey, "teacher")

	registrar := &slowRegistrar{baseURL: srv.URL}
	notifier := pushsvc.NewNotifier(registrar, logger)
	m, err := session.NewManager(session.Deps{
		Auth:     sessiontest.NewAuth(),
		Profiles: sessiontest.NewProfiles(),
		Storage:  store,
		Logger:   logger,
		Notifier: notifier,
	}, session.Options{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()
	m.Bootstrap(ctx)
	if _, ok := m.Session(); !ok {
		t.Fatal("cached session not restored")
	}

	out := new(syncBuffer)
	cli := &commandLine{m: m, notifier: notifier, out: out}
	listenCtx, stopListening := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- cli.run(listenCtx, []string{"client", "listen"}) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		reached, err := hub.Send(ctx, []string{"u-9"}, session.Notification{Title: "Class moved", Body: "Room 4B"})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if reached == 1 && strings.Contains(out.String(), "Class moved: Room 4B") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notification not printed, output = %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopListening()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("cli.run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&registrar.calls))
}
