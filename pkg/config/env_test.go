package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("CFG_TEST_STRING", "hello")
	assert.Equal(t, "hello", GetEnv("CFG_TEST_STRING", "fallback"))
	assert.Equal(t, "fallback", GetEnv("CFG_TEST_STRING_MISSING", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("CFG_TEST_INT", 7))

	t.Setenv("CFG_TEST_INT_BAD", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("CFG_TEST_INT_BAD", 7))

	assert.Equal(t, 7, GetEnvInt("CFG_TEST_INT_MISSING", 7))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("CFG_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("CFG_TEST_BOOL", false))

	t.Setenv("CFG_TEST_BOOL_BAD", "yes please")
	assert.False(t, GetEnvBool("CFG_TEST_BOOL_BAD", false))
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, GetLogLevel())

	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, logrus.InfoLevel, GetLogLevel())
}

func TestLoadEnvWithoutLogger(t *testing.T) {
	// LoadEnv runs before the logger exists so it must tolerate nil.
	assert.NotPanics(t, func() { LoadEnv(nil) })
}
