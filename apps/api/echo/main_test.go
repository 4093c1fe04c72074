package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/session/sessiontest"
	"github.com/loopverse/campus/core/user"
	appfs "github.com/loopverse/campus/fs"
	emailsvc "github.com/loopverse/campus/services/email"
	pushsvc "github.com/loopverse/campus/services/push"
	inmemdb "github.com/loopverse/campus/storage/database/inmem"
)

const testPassword = "Kx9#mQ2$vLp7"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf    *core.Config
	app     *Server
	repo    user.Repository
	learn   learning.Repository
	mailSvc *emailsvc.ConsoleService
	hub     *pushsvc.Hub
	logger  *sessiontest.Logger
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "LoopVerse",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 24 * time.Hour,
		},
	}
	if err := core.ParseEmailTemplates(appfs.FS, conf); err != nil {
		t.Fatalf("ParseEmailTemplates() error = %v", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	logger := &sessiontest.Logger{}
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	learn := inmemdb.NewLearningRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	ctx, cancel := context.WithCancel(context.Background())
	hub := pushsvc.NewHub(logger, core.PushConfig{})
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	app := NewServer(ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     user.NewService(repo, mailSvc, conf),
		LearningSvc: learning.NewService(learn),
		Hub:         hub,
		Validate:    validate,
		Translator:  translator,
	})
	t.Cleanup(func() {
		cancel()
		<-runDone
		_ = app.Shutdown(context.Background())
	})

	return &fixture{conf: conf, app: app, repo: repo, learn: learn, mailSvc: mailSvc, hub: hub, logger: logger}
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := f.app.jwt.generateToken(f.app.jwt.userClaims(usr))
	if err != nil {
		t.Fatalf("generateToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (f *fixture) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
