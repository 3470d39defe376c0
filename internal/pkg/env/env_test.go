package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	Env = map[string]string{"VS_TEST_KEY": "from-file"}
	t.Setenv("VS_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("VS_TEST_KEY", "default"))
}

func TestGetEnvFallbacks(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })
	Env = nil

	t.Setenv("VS_TEST_OS_ONLY", "from-os")
	assert.Equal(t, "from-os", GetEnv("VS_TEST_OS_ONLY", "default"))
	assert.Equal(t, "default", GetEnv("VS_TEST_MISSING", "default"))
}

func TestFirstEnv(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })
	Env = map[string]string{"VS_SECOND": "two"}

	assert.Equal(t, "two", FirstEnv("def", "VS_FIRST", "VS_SECOND"))
	assert.Equal(t, "def", FirstEnv("def", "VS_NONE"))
}
