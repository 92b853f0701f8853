package logger

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareLogger(t *testing.T) {
	ctx := context.Background()
	newCtx, log := PrepareLogger(ctx)

	assert.NotNil(t, log)
	assert.NotNil(t, newCtx)
	assert.NotEqual(t, ctx, newCtx)

	retrievedLogger := GetLogger(newCtx)
	assert.Equal(t, log, retrievedLogger)
}

func TestGetLoggerWithoutStoredLogger(t *testing.T) {
	ctx := context.Background()
	log := GetLogger(ctx)
	assert.NotNil(t, log)
}

func TestGetLoggerNilContext(t *testing.T) {
	log := GetLogger(nil)
	assert.NotNil(t, log)
}

func TestNewProductionLogger(t *testing.T) {
	log := NewProductionLogger()
	assert.NotNil(t, log)
	log.Info("test production logger")
}

func TestNewDevelopmentLogger(t *testing.T) {
	log := NewDevelopmentLogger()
	assert.NotNil(t, log)
	log.Debug("test development logger")
}

func TestNewLoggerFromEnv(t *testing.T) {
	old := os.Getenv("DEPLOYCTL_ENV")
	defer os.Setenv("DEPLOYCTL_ENV", old)

	os.Setenv("DEPLOYCTL_ENV", "development")
	assert.NotNil(t, NewLoggerFromEnv())

	os.Setenv("DEPLOYCTL_ENV", "production")
	assert.NotNil(t, NewLoggerFromEnv())

	os.Unsetenv("DEPLOYCTL_ENV")
	assert.NotNil(t, NewLoggerFromEnv())
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	ctx, _ = PrepareLogger(ctx)

	err := Sync(ctx)
	// Sync can error on some systems when syncing stdout, so don't assert on it.
	_ = err
}
