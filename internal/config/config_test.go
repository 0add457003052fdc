package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "compilation.json", c.ManifestPath)
	assert.Equal(t, "compiled", c.TargetDir)
	assert.Equal(t, "build", c.CacheDir)
	assert.Equal(t, "res/annotations.json", c.AnnotationsPath)
	assert.Equal(t, int64(0), c.VersionFloor)
	assert.Equal(t, 11, c.BrotliLevel)
	assert.False(t, c.IsPublishConfigured())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BUILD_TARGET_DIR", "out")
	t.Setenv("VERSION_FLOOR", "1600000000")
	t.Setenv("PREVIEW_WATCH", "true")
	t.Setenv("PUBLISH_PREFIX", "/site/")

	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "out", c.TargetDir)
	assert.Equal(t, int64(1600000000), c.VersionFloor)
	assert.True(t, c.PreviewWatch)
	assert.Equal(t, "site", c.PublishPrefix)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"VERSION_FLOOR": "yesterday",
		"BROTLI_LEVEL":  "12",
		"PREVIEW_WATCH": "maybe",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestIsPublishConfigured(t *testing.T) {
	c := Default()
	c.PublishEndpoint = "https://example.r2.cloudflarestorage.com"
	c.PublishAccessKey = "ak"
	c.PublishSecretKey = "sk"
	assert.False(t, c.IsPublishConfigured())

	c.PublishBucket = "site"
	assert.True(t, c.IsPublishConfigured())
}
