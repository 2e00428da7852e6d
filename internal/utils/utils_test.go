package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetFileExtension(t *testing.T) {
	assert.Equal(t, "png", GetFileExtension("a/b/mask.PNG"))
	assert.Equal(t, "", GetFileExtension("README"))
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("photo.jpeg"))
	assert.True(t, IsImageFile("mask.webp"))
	assert.False(t, IsImageFile("paths.json"))
}

func TestSegmentFilename(t *testing.T) {
	got := SegmentFilename("/in/my photo.jpg", "out", "", "_sticker", "png", 1)
	assert.Equal(t, filepath.Join("out", "my_photo_seg1_sticker.png"), got)

	got = SegmentFilename("scene.webp", "out", "x_", "_overlay", "", 3)
	assert.Equal(t, filepath.Join("out", "x_scene_seg3_overlay.png"), got)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b:c"))
	assert.Equal(t, "name", SanitizeFilename(".name."))
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, EnsureDir(nested))
	assert.False(t, FileExists(nested))

	path := filepath.Join(nested, "report.json")
	require.NoError(t, WriteJSON(path, map[string]int{"area": 4}))
	assert.True(t, FileExists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 4, got["area"])
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("development", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("development", "loud")
	assert.Error(t, err)
}
