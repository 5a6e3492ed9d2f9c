package readers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TxtFileReader_CanRead(t *testing.T) {
	r := TxtFileReader{}
	assert.True(t, r.CanRead("some/file.txt"))
	assert.True(t, r.CanRead("some/notes.md"))
	assert.False(t, r.CanRead("some/file.pdf"))
}

func Test_TxtFileReader_ReadText(t *testing.T) {
	r := TxtFileReader{}

	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	txt, err := r.ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", txt)
}

func Test_TxtFileReader_ReadText_Missing(t *testing.T) {
	r := TxtFileReader{}
	_, err := r.ReadText(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
