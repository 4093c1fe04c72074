package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/session/sessiontest"
	"github.com/loopverse/campus/core/user"
	pushsvc "github.com/loopverse/campus/services/push"
	remotesvc "github.com/loopverse/campus/services/remote"
	kvstore "github.com/loopverse/campus/storage/kv"
	testutil "github.com/loopverse/campus/tests"
)

func TestPushAPI(t *testing.T) {
	f := setup(t)
	vic := testutil.CreateUser(t, f.repo, "Vic", "vic@school.edu", testPassword, user.RoleStudent, true)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	rec := f.do(httpTest{method: http.MethodPost, path: "/push/v1/register", token: f.token(t, vic)})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var tok PushTokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &tok)
	resolved, err := f.repo.GetPushToken(context.Background(), tok.Token)
	if err != nil || resolved.UserID != vic.ID {
		t.Errorf("push token = %+v, %v; want one for %s", resolved, err, vic.ID)
	}

	tests := []httpTest{
		{
			name:     "student cannot send",
			method:   http.MethodPost,
			path:     "/push/v1/send",
			token:    f.token(t, vic),
			body:     marshallObj(t, SendPushRequest{UserIDs: []string{uma.ID}, Title: "hi"}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "teacher to offline users",
			method:   http.MethodPost,
			path:     "/push/v1/send",
			token:    f.token(t, uma),
			body:     marshallObj(t, SendPushRequest{Roles: []user.Role{user.RoleStudent}, UserIDs: []string{vic.ID}, Title: "Quiz"}),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, SendPushResponse{Delivered: 0}),
		},
		{
			name:     "missing title",
			method:   http.MethodPost,
			path:     "/push/v1/send",
			token:    f.token(t, uma),
			body:     marshallObj(t, SendPushRequest{UserIDs: []string{vic.ID}}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title":"this field is required"}`),
		},
		{
			name:     "no recipients",
			method:   http.MethodPost,
			path:     "/push/v1/send",
			token:    f.token(t, uma),
			body:     []byte(`{"title":"Quiz"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown device token",
			method:   http.MethodGet,
			path:     "/push/v1/ws?token=nope",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "user not authenticated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(tt))
		})
	}
}

func Test_dedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "b", "", "a", "c", "b"}))
}

// TestSessionManager runs the client session manager against the API.
func TestSessionManager(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := kvstore.NewMemoryStore()
	logger := &sessiontest.Logger{}
	newManager := func(opts session.Options) (*session.Manager, *remotesvc.Client, *pushsvc.Notifier, *sessiontest.Navigator) {
		client := remotesvc.NewClient(srv.URL, store, logger, nil)
		notifier := pushsvc.NewNotifier(client, logger)
		nav := &sessiontest.Navigator{}
		m, err := session.NewManager(session.Deps{
			Auth:      client,
			Profiles:  client,
			Storage:   store,
			Logger:    logger,
			Notifier:  notifier,
			Navigator: nav,
		}, opts)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		t.Cleanup(m.Close)
		return m, client, notifier, nav
	}

	m, client, notifier, _ := newManager(session.Options{Fallback: core.FallbackNever})
	m.Bootstrap(ctx)
	if _, ok := m.Session(); ok {
		t.Fatal("Session() present before signing in")
	}

	// sign up: remote account, profile inserted in the background, device registered
	sess, err := m.SignUp(ctx, "Vic@School.edu", testPassword, "Vic", user.RoleStudent)
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	assert.Equal(t, session.SourceRemote, sess.Source)
	assert.Equal(t, user.RoleStudent, sess.Role)
	m.Wait()

	prof, err := f.repo.GetProfile(ctx, sess.ID)
	if err != nil {
		t.Fatalf("profile not inserted: %v", err)
	}
	assert.Equal(t, "Vic", prof.Name.String)
	assert.Equal(t, "student", prof.Role.String)
	if m.PushToken() == "" || m.PushToken() != notifier.Token() {
		t.Fatalf("PushToken() = %q, notifier token %q", m.PushToken(), notifier.Token())
	}

	// a teacher notifies every student
	received := make(chan session.Notification, 1)
	notifier.AddNotificationReceivedListener(func(n session.Notification) {
		select {
		case received <- n:
		default:
		}
	})
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go func() { _ = notifier.Listen(listenCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := f.do(httpTest{
			method: http.MethodPost,
			path:   "/push/v1/send",
			token:  f.token(t, uma),
			body:   marshallObj(t, SendPushRequest{Roles: []user.Role{user.RoleStudent}, Title: "Quiz tomorrow"}),
		})
		var res SendPushResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &res)
		if res.Delivered == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notification never delivered: %s", rec.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case n := <-received:
		assert.Equal(t, "Quiz tomorrow", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
	stopListening()

	// sign out clears everything
	m.SignOut(ctx)
	if _, ok := m.Session(); ok {
		t.Error("Session() present after SignOut")
	}
	if rs, _ := client.GetSession(ctx); rs != nil {
		t.Errorf("remote session = %+v after SignOut", rs)
	}

	// wrong password is rejected without a local fallback
	if _, err = m.SignIn(ctx, "vic@school.edu", "wrong"); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Errorf("SignIn() error = %v, wantErr %v", err, session.ErrInvalidCredentials)
	}

	sess, err = m.SignIn(ctx, "vic@school.edu", testPassword)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	assert.Equal(t, "Vic", sess.Name)
	assert.Equal(t, session.SourceRemote, sess.Source)
	m.Wait()

	// a new app start restores the remote session and routes by profile role
	restored, _, _, nav := newManager(session.Options{})
	restored.Bootstrap(ctx)
	got, ok := restored.Session()
	if !ok {
		t.Fatal("Session() not restored")
	}
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, user.RoleStudent, got.Role)
	assert.Equal(t, []string{session.RouteStudentDashboard}, nav.Routes())
	restored.Wait()
}
