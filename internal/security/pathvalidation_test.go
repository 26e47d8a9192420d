package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	assert.NoError(t, ValidatePathWithinDirectory(filepath.Join(dir, "plot.png"), dir))
	assert.NoError(t, ValidatePathWithinDirectory(filepath.Join(dir, "new", "deep", "plot.png"), dir))
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(dir, "..", "plot.png"), dir))
	assert.Error(t, ValidatePathWithinDirectory("/etc/passwd", dir))
}

func TestValidatePathRejectsSymlinkEscape(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "escape")
	require.NoError(t, os.Symlink(outside, link))

	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(link, "plot.png"), dir))
}

func TestValidateOutputPath(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "slamsim.png")))
	assert.NoError(t, ValidateOutputPath("trajectory.png"))
	assert.Error(t, ValidateOutputPath("/proc/self/slamsim.png"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"square_room":       "square_room",
		"run 1/../../x":     "run_1_.._.._x",
		"  ":                "unknown",
		"":                  "unknown",
		".hidden.":          "hidden",
		"pillars#2 (iep)":   "pillars_2_iep",
		"ümlaut-scene.json": "mlaut-scene.json",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
