package blob

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndOpen(t *testing.T) {
	s := New(afero.NewMemMapFs(), "uploads")

	require.NoError(t, s.Write(context.Background(), "a.txt", []byte("hello")))

	f, err := s.Open("a.txt")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteRejectsTraversal(t *testing.T) {
	s := New(afero.NewMemMapFs(), "uploads")

	for _, name := range []string{"", "..", "../etc/passwd", "a/b.txt"} {
		err := s.Write(context.Background(), name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestWriteFailsOnReadOnlyFs(t *testing.T) {
	s := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "uploads")

	err := s.Write(context.Background(), "a.txt", []byte("x"))
	require.Error(t, err)
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	s := New(afero.NewMemMapFs(), "uploads")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Write(ctx, "a.txt", []byte("x")), context.Canceled)
}

func TestNewName(t *testing.T) {
	tests := []struct {
		original string
		wantExt  string
	}{
		{original: "photo.png", wantExt: ".png"},
		{original: "archive.tar.gz", wantExt: ".gz"},
		{original: "noext", wantExt: ""},
		{original: "evil.p/../hp", wantExt: ""},
		{original: "weird.a-b_c", wantExt: ".abc"},
	}

	seen := map[string]bool{}
	for _, tt := range tests {
		name := NewName(tt.original)
		assert.Equal(t, tt.wantExt, filepath.Ext(name), "original %q", tt.original)
		assert.False(t, strings.ContainsRune(name, '/'))
		assert.False(t, seen[name], "duplicate name %q", name)
		seen[name] = true
	}
}
