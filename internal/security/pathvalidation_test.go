package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()
	images := filepath.Join(root, "images")
	outside := filepath.Join(root, "outside")
	require.NoError(t, os.MkdirAll(images, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(images, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(images, "escape")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing file", filepath.Join(images, "a.jpg"), false},
		{"missing file", filepath.Join(images, "b.jpg"), false},
		{"missing nested file", filepath.Join(images, "sub", "c.jpg"), false},
		{"dot dot", filepath.Join(images, "..", "outside", "a.jpg"), true},
		{"sibling", filepath.Join(outside, "a.jpg"), true},
		{"through symlink", filepath.Join(images, "escape", "a.jpg"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, images)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
