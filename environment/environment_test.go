package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRequiredSet(t *testing.T) {
	t.Setenv("ABC", "VAL")
	value, err := GetRequired("ABC")

	assert.Equal(t, "VAL", value)
	assert.Nil(t, err)
}

func TestGetRequiredUnset(t *testing.T) {
	os.Unsetenv("ABC")
	value, err := GetRequired("ABC")

	assert.Equal(t, "", value)
	assert.Equal(t, "required environment variable 'ABC' is not defined", err.Error())
}

func TestGetIntWithDefault(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	tests := []struct {
		name     string
		envValue *string
		expected int
	}{
		{name: "unset", envValue: nil, expected: 7},
		{name: "valid", envValue: strp("3"), expected: 3},
		{name: "negative", envValue: strp("-1"), expected: -1},
		{name: "not an int", envValue: strp("three"), expected: 7},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			os.Unsetenv("REDIS_STORE_DB_TEST")
			if test.envValue != nil {
				t.Setenv("REDIS_STORE_DB_TEST", *test.envValue)
			}
			assert.Equal(t, test.expected, GetIntWithDefault("REDIS_STORE_DB_TEST", 7))
		})
	}
}

func TestGetTruthy(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"1", true},
		{"T", true},
		{"false", false},
		{"yes", false},
	}
	for _, test := range tests {
		t.Run(test.value, func(t *testing.T) {
			t.Setenv("USE_TLS_TEST", test.value)
			assert.Equal(t, test.expected, GetTruthy("USE_TLS_TEST"))
		})
	}
	os.Unsetenv("USE_TLS_TEST")
	assert.False(t, GetTruthy("USE_TLS_TEST"))
}

func TestGetOrFatalPanicsWhenUnset(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	os.Unsetenv("MISSING_TEST_VAR")
	assert.Panics(t, func() { GetOrFatal("MISSING_TEST_VAR") })
}

func TestReadIndirectWithDefault(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	os.Unsetenv("PASSWORD_FILE_TEST")
	assert.Equal(t, "fallback", ReadIndirectWithDefault("PASSWORD_FILE_TEST", "fallback"))

	filename := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(filename, []byte("secret"), 0o600))
	t.Setenv("PASSWORD_FILE_TEST", filename)
	assert.Equal(t, "secret", ReadIndirectWithDefault("PASSWORD_FILE_TEST", "fallback"))
}

func strp(s string) *string {
	return &s
}
