package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
)

func TestRollbarLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	logger := NewRollbarLogger(zap.New(obs), &core.Config{Env: "TEST", Debug: true})

	errBoom := errors.New("boom")
	logger.Error("sign in failed", errBoom, user.User{ID: "u-1", Name: "Uma"}, map[string]interface{}{"email": "uma@school.edu"})
	logger.Info("restored", session.Session{ID: "u-2"}, 42)
	logger.Debug("plain")

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	first := entries[0].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "sign in failed", entries[0].Message)
	assert.Equal(t, "boom", first["error"])
	assert.Equal(t, "u-1", first["user_id"])
	assert.Equal(t, "uma@school.edu", first["email"])

	second := entries[1].ContextMap()
	assert.Equal(t, "u-2", second["user_id"])
	assert.EqualValues(t, 42, second["arg1"])

	assert.Empty(t, entries[2].ContextMap())
}
