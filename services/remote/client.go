// Package remotesvc is the HTTP client of the LoopVerse backend.
// It signs users in and out, keeps the auth session in local storage and reads the profiles and learning tables.
package remotesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
)

// AuthSessionKey holds the persisted auth session.
const AuthSessionKey = "loopverse_auth_session"

// ErrUnavailable is returned for 5xx responses.
var ErrUnavailable = errors.New("remote service unavailable")

// APIError is a non-2xx response. It unwraps to session.ErrInvalidCredentials, session.ErrRejected or ErrUnavailable.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

type Client struct {
	baseURL string
	rest    *rest.Client
	store   core.KVStore
	logger  core.Logger
	nowFunc func() time.Time

	mu      sync.RWMutex
	session *session.RemoteSession
	loaded  bool

	subMu       sync.Mutex
	subscribers map[int]func(session.AuthChange)
	nextSubID   int
}

var (
	// interface compliance checks
	_ session.AuthClient       = (*Client)(nil)
	_ session.PasswordResetter = (*Client)(nil)
	_ session.ProfileStore     = (*Client)(nil)
)

// NewClient returns a Client of the backend at baseURL. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, store core.KVStore, logger core.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		rest:        &rest.Client{HTTPClient: httpClient},
		store:       store,
		logger:      logger,
		nowFunc:     time.Now,
		subscribers: make(map[int]func(session.AuthChange)),
	}
}

type request struct {
	method rest.Method
	path   string
	query  map[string]string
	body   interface{}
	auth   bool
}

// do sends req and decodes a 2xx JSON body into dst when dst is not nil.
func (c *Client) do(ctx context.Context, req request, dst interface{}) (*rest.Response, error) {
	headers := map[string]string{"Accept": "application/json"}
	if req.auth {
		tok := c.accessToken(ctx)
		if tok == "" {
			return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: "not signed in", kind: session.ErrRejected}
		}
		headers["Authorization"] = "Bearer " + tok
	}

	var body []byte
	if req.body != nil {
		var err error
		if body, err = json.Marshal(req.body); err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		headers["Content-Type"] = "application/json"
	}

	resp, err := c.rest.SendWithContext(ctx, rest.Request{
		Method:      req.method,
		BaseURL:     c.baseURL + req.path,
		Headers:     headers,
		QueryParams: req.query,
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.method, req.path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp, newAPIError(resp)
	}
	if dst != nil && resp.StatusCode != http.StatusNoContent && resp.Body != "" {
		if err = json.Unmarshal([]byte(resp.Body), dst); err != nil {
			return resp, errors.Wrap(err, "decoding response body")
		}
	}
	return resp, nil
}

func newAPIError(resp *rest.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Body), &payload); err == nil {
		if msg, ok := payload["error"].(string); ok {
			apiErr.Message = msg
		} else if len(payload) > 0 {
			// field errors
			apiErr.Message = resp.Body
		}
	} else if body := strings.TrimSpace(resp.Body); body != "" {
		apiErr.Message = strings.Trim(body, `"`)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		apiErr.kind = ErrUnavailable
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		apiErr.kind = ErrUnavailable
	default:
		apiErr.kind = session.ErrRejected
	}
	return apiErr
}

func (c *Client) accessToken(ctx context.Context) string {
	rs, _ := c.GetSession(ctx)
	if rs == nil {
		return ""
	}
	return rs.AccessToken
}

// GetSession returns the stored auth session, loading it from local storage on first use.
// Expired sessions are dropped.
func (c *Client) GetSession(ctx context.Context) (*session.RemoteSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		rs, err := c.loadSession(ctx)
		if err != nil {
			return nil, err
		}
		c.session = rs
	}
	if c.session == nil {
		return nil, nil
	}
	if c.session.Expired(c.nowFunc()) {
		c.session = nil
		if err := c.store.RemoveItem(ctx, AuthSessionKey); err != nil {
			c.logger.Error("removing expired auth session", err)
		}
		return nil, nil
	}
	rs := *c.session
	return &rs, nil
}

func (c *Client) loadSession(ctx context.Context) (*session.RemoteSession, error) {
	blob, err := c.store.GetItem(ctx, AuthSessionKey)
	if err != nil {
		if errors.Is(err, core.ErrItemNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading auth session")
	}
	var rs session.RemoteSession
	if err = json.Unmarshal([]byte(blob), &rs); err != nil {
		c.logger.Warn("discarding unreadable auth session", err)
		return nil, nil
	}
	if rs.AccessToken == "" {
		return nil, nil
	}
	return &rs, nil
}

// setSession stores rs (nil clears it) and notifies subscribers of event.
func (c *Client) setSession(ctx context.Context, rs *session.RemoteSession, event session.AuthEvent) {
	c.mu.Lock()
	c.session = rs
	c.loaded = true
	c.mu.Unlock()

	if rs == nil {
		if err := c.store.RemoveItem(ctx, AuthSessionKey); err != nil {
			c.logger.Error("removing auth session", err)
		}
	} else if blob, err := json.Marshal(rs); err != nil {
		c.logger.Error("encoding auth session", err)
	} else if err = c.store.SetItem(ctx, AuthSessionKey, string(blob)); err != nil {
		c.logger.Error("saving auth session", err)
	}

	var snapshot *session.RemoteSession
	if rs != nil {
		cp := *rs
		snapshot = &cp
	}
	c.emit(session.AuthChange{Event: event, Session: snapshot})
}

func (c *Client) OnAuthStateChange(fn func(session.AuthChange)) session.Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	return session.SubscriptionFunc(func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	})
}

func (c *Client) emit(change session.AuthChange) {
	c.subMu.Lock()
	fns := make([]func(session.AuthChange), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

type credentials struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     map[string]string `json:"data,omitempty"`
}

func (c *Client) SignInWithPassword(ctx context.Context, email, pwd string) (*session.RemoteSession, error) {
	var rs session.RemoteSession
	_, err := c.do(ctx, request{
		method: rest.Post,
		path:   "/auth/v1/token",
		query:  map[string]string{"grant_type": "password"},
		body:   credentials{Email: email, Password: pwd},
	}, &rs)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized) {
			apiErr.kind = session.ErrInvalidCredentials
		}
		return nil, err
	}
	if rs.AccessToken == "" {
		return nil, session.ErrNoUser
	}
	c.setSession(ctx, &rs, session.EventSignedIn)
	return &rs, nil
}

// SignUp creates the account. The backend signs the new user in right away when it returns a session.
func (c *Client) SignUp(ctx context.Context, email, pwd string, metadata map[string]string) (*session.RemoteUser, error) {
	var rs session.RemoteSession
	_, err := c.do(ctx, request{
		method: rest.Post,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: pwd, Data: metadata},
	}, &rs)
	if err != nil {
		return nil, err
	}
	if rs.User.ID == "" {
		return nil, nil
	}
	if rs.AccessToken != "" {
		c.setSession(ctx, &rs, session.EventSignedIn)
	}
	u := rs.User
	return &u, nil
}

// SignOut revokes the session on the backend. The local session is dropped even when that fails.
func (c *Client) SignOut(ctx context.Context) error {
	rs, _ := c.GetSession(ctx)
	if rs == nil {
		return nil
	}
	_, err := c.do(ctx, request{method: rest.Post, path: "/auth/v1/logout", auth: true}, nil)
	c.setSession(ctx, nil, session.EventSignedOut)
	return err
}

// User fetches the signed-in user from the backend.
func (c *Client) User(ctx context.Context) (session.RemoteUser, error) {
	var ru session.RemoteUser
	_, err := c.do(ctx, request{method: rest.Get, path: "/auth/v1/user", auth: true}, &ru)
	return ru, err
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	_, err := c.do(ctx, request{
		method: rest.Post,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email},
	}, nil)
	return err
}

func (c *Client) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	var prof user.Profile
	_, err := c.do(ctx, request{method: rest.Get, path: "/rest/v1/profiles/" + id, auth: true}, &prof)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return user.Profile{}, user.ErrProfileNotFound
		}
		return user.Profile{}, err
	}
	return prof, nil
}

func (c *Client) InsertProfile(ctx context.Context, np user.NewProfile) error {
	_, err := c.do(ctx, request{method: rest.Post, path: "/rest/v1/profiles", body: np, auth: true}, nil)
	return err
}

// RegisterPushToken asks the backend for a push token bound to the signed-in user.
func (c *Client) RegisterPushToken(ctx context.Context) (string, error) {
	var payload struct {
		Token string `json:"token"`
	}
	if _, err := c.do(ctx, request{method: rest.Post, path: "/push/v1/register", auth: true}, &payload); err != nil {
		return "", err
	}
	return payload.Token, nil
}

// Courses lists the courses the signed-in user may see.
func (c *Client) Courses(ctx context.Context) ([]learning.Course, error) {
	var courses []learning.Course
	_, err := c.do(ctx, request{method: rest.Get, path: "/rest/v1/courses", auth: true}, &courses)
	return courses, err
}

// Enroll takes a seat in an approved course.
func (c *Client) Enroll(ctx context.Context, courseID string) (learning.Enrollment, error) {
	var enr learning.Enrollment
	_, err := c.do(ctx, request{
		method: rest.Post,
		path:   "/rest/v1/enrollments",
		body:   learning.NewEnrollment{CourseID: courseID},
		auth:   true,
	}, &enr)
	return enr, err
}

func (c *Client) Enrollments(ctx context.Context) ([]learning.Enrollment, error) {
	var enrs []learning.Enrollment
	_, err := c.do(ctx, request{method: rest.Get, path: "/rest/v1/enrollments", auth: true}, &enrs)
	return enrs, err
}

func (c *Client) Events(ctx context.Context) ([]learning.Event, error) {
	var events []learning.Event
	_, err := c.do(ctx, request{method: rest.Get, path: "/rest/v1/events", auth: true}, &events)
	return events, err
}

func (c *Client) Announcements(ctx context.Context) ([]learning.Announcement, error) {
	var anns []learning.Announcement
	_, err := c.do(ctx, request{method: rest.Get, path: "/rest/v1/announcements", auth: true}, &anns)
	return anns, err
}

func (c *Client) CreateAnnouncement(ctx context.Context, na learning.NewAnnouncement) (learning.Announcement, error) {
	var ann learning.Announcement
	_, err := c.do(ctx, request{method: rest.Post, path: "/rest/v1/announcements", body: na, auth: true}, &ann)
	return ann, err
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string { return c.baseURL }
