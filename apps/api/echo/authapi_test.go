package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"

	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
	testutil "github.com/loopverse/campus/tests"
)

func TestAuthAPI_signUp(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	tests := []struct {
		httpTest
		adminSignUp bool
		wantMail    bool
	}{
		{
			httpTest: httpTest{
				name:     "valid",
				body:     []byte(`{"email":" Vic@School.edu ","password":"` + testPassword + `","data":{"name":"Vic","role":"student"}}`),
				wantCode: http.StatusCreated,
			},
			wantMail: true,
		},
		{
			httpTest: httpTest{
				name:     "email taken",
				body:     []byte(`{"email":"uma@school.edu","password":"` + testPassword + `"}`),
				wantCode: http.StatusBadRequest,
				wantData: []byte(`{"email":"a user with this email already exists"}`),
			},
		},
		{
			httpTest: httpTest{
				name:     "invalid email",
				body:     []byte(`{"email":"nope","password":"` + testPassword + `"}`),
				wantCode: http.StatusBadRequest,
				wantData: []byte(`{"email":"enter a valid email address"}`),
			},
		},
		{
			httpTest: httpTest{
				name:     "short password",
				body:     []byte(`{"email":"wes@school.edu","password":"Ab1!"}`),
				wantCode: http.StatusBadRequest,
				wantData: []byte(`{"password":"password must contain at least 8 characters"}`),
			},
		},
		{
			httpTest: httpTest{
				name:     "unknown role",
				body:     []byte(`{"email":"wes@school.edu","password":"` + testPassword + `","data":{"role":"janitor"}}`),
				wantCode: http.StatusBadRequest,
				wantData: []byte(`{"role":"role must be one of admin, teacher or student"}`),
			},
		},
		{
			httpTest: httpTest{
				name:     "admin role refused",
				body:     []byte(`{"email":"wes@school.edu","password":"` + testPassword + `","data":{"role":"Admin"}}`),
				wantCode: http.StatusBadRequest,
				wantData: []byte(`{"role":"admin accounts are created by an administrator"}`),
			},
		},
		{
			httpTest: httpTest{
				name:     "admin role allowed",
				body:     []byte(`{"email":"xia@school.edu","password":"` + testPassword + `","data":{"name":"Xia","role":"admin"}}`),
				wantCode: http.StatusCreated,
			},
			adminSignUp: true,
			wantMail:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.mailSvc.Reset()
			f.conf.Server.AdminSignUp = tt.adminSignUp
			tt.method, tt.path = http.MethodPost, "/auth/v1/signup"
			rec := f.do(tt.httpTest)
			checkCodeAndData(t, tt.httpTest, rec)
			assert.Equal(t, tt.wantMail, len(f.mailSvc.SentMessages()) == 1)

			if tt.wantCode != http.StatusCreated {
				return
			}
			var rs session.RemoteSession
			if err := json.Unmarshal(rec.Body.Bytes(), &rs); err != nil {
				t.Fatalf("decoding session: %v", err)
			}
			assert.NotEmpty(t, rs.AccessToken)
			assert.False(t, rs.Expired(time.Now()))
			if tt.adminSignUp {
				assert.Equal(t, map[string]string{"name": "Xia", "role": "admin"}, rs.User.Metadata)
				return
			}
			assert.Equal(t, "vic@school.edu", rs.User.Email)
			assert.Equal(t, map[string]string{"name": "Vic", "role": "student"}, rs.User.Metadata)
		})
	}
}

func TestAuthAPI_token(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)
	testutil.CreateUser(t, f.repo, "Gone", "gone@school.edu", testPassword, user.RoleStudent, false)

	tests := []httpTest{
		{
			name:     "valid credentials",
			path:     "/auth/v1/token?grant_type=password",
			body:     []byte(`{"email":"UMA@school.edu","password":"` + testPassword + `"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			path:     "/auth/v1/token?grant_type=password",
			body:     []byte(`{"email":"uma@school.edu","password":"wrong"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "unknown user",
			path:     "/auth/v1/token?grant_type=password",
			body:     []byte(`{"email":"who@school.edu","password":"wrong"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated",
			path:     "/auth/v1/token?grant_type=password",
			body:     []byte(`{"email":"gone@school.edu","password":"` + testPassword + `"}`),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "missing grant type",
			path:     "/auth/v1/token",
			body:     []byte(`{"email":"uma@school.edu","password":"` + testPassword + `"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "unsupported grant type"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPost
			rec := f.do(tt)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode != http.StatusOK {
				return
			}

			var rs session.RemoteSession
			if err := json.Unmarshal(rec.Body.Bytes(), &rs); err != nil {
				t.Fatalf("decoding session: %v", err)
			}
			claims := new(Claims)
			if _, err := jwt.ParseWithClaims(rs.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(f.conf.SecretKey), nil
			}); err != nil {
				t.Fatalf("ParseWithClaims() error = %v", err)
			}
			assert.Equal(t, uma.ID, claims.Subject)
			assert.Equal(t, user.RoleTeacher, claims.Role)
			assert.True(t, claims.IsTeacher)
			assert.Equal(t, "bearer", rs.TokenType)

			usr, _ := f.repo.GetUserByID(context.Background(), uma.ID)
			assert.True(t, usr.LastLogin.Valid)
		})
	}
}

func TestAuthAPI_user(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	tests := []httpTest{
		{
			name:     "no token",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "bad token",
			token:    "header.payload.signature",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "valid token",
			token:    f.token(t, uma),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, session.RemoteUser{
				ID:       uma.ID,
				Email:    uma.Email,
				Metadata: map[string]string{"name": "Uma", "role": "teacher"},
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodGet, "/auth/v1/user"
			checkCodeAndData(t, tt, f.do(tt))
		})
	}
}

func TestAuthAPI_refreshToken(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	expired := f.app.jwt.userClaims(uma, time.Now().Add(-5*time.Hour).Unix())
	expiredToken, err := f.app.jwt.generateToken(expired)
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}

	tests := []httpTest{
		{name: "fresh login", token: f.token(t, uma), wantCode: http.StatusOK},
		{
			name:     "refresh window passed",
			token:    expiredToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/auth/v1/token/refresh"
			checkCodeAndData(t, tt, f.do(tt))
		})
	}
}

func TestAuthAPI_recover(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	tests := []struct {
		name     string
		email    string
		wantCode int
		wantMail bool
	}{
		{name: "known email", email: "uma@school.edu", wantCode: http.StatusOK, wantMail: true},
		{name: "unknown email", email: "who@school.edu", wantCode: http.StatusOK},
		{name: "invalid email", email: "nope", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.mailSvc.Reset()
			rec := f.do(httpTest{
				method: http.MethodPost,
				path:   "/auth/v1/recover",
				body:   marshallObj(t, PasswordResetRequest{Email: tt.email}),
			})
			assert.Equal(t, tt.wantCode, rec.Code)

			sent := f.mailSvc.SentMessages()
			assert.Equal(t, tt.wantMail, len(sent) == 1)
			if tt.wantMail {
				assert.Equal(t, "password_reset", sent[0].TemplateName)
			}
		})
	}
}

func TestAuthAPI_confirmRecover(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	rec := f.do(httpTest{
		method: http.MethodPost,
		path:   "/auth/v1/recover/confirm",
		body:   marshallObj(t, user.ResetUserPassword{UID: user.EncodeUID(uma), Token: "1-abc", Password: "N3w#Passw0rd"}),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "token")

	rec = f.do(httpTest{method: http.MethodPost, path: "/auth/v1/recover/confirm", body: []byte(`{}`)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthAPI_logout(t *testing.T) {
	f := setup(t)
	uma := testutil.CreateUser(t, f.repo, "Uma", "uma@school.edu", testPassword, user.RoleTeacher, true)

	rec := f.do(httpTest{method: http.MethodPost, path: "/auth/v1/logout", token: f.token(t, uma)})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(httpTest{method: http.MethodGet, path: "/auth/v1/roles"})
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshallObj(t, user.Roles)}, rec)
}
