package filestack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIndex(t *testing.T, content string) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handles.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewIndex(path)
}

func TestLookup(t *testing.T) {
	idx := writeIndex(t, "handle,path\nAbCdEf123,uploads/2019/AbCdEf123.jpg\nXyZ789,uploads/2020/XyZ789.png\n")

	path, ok, err := idx.Lookup("AbCdEf123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "uploads/2019/AbCdEf123.jpg", path)

	_, ok, err = idx.Lookup("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupColumnsByHeaderName(t *testing.T) {
	idx := writeIndex(t, "path,extra,handle\nuploads/2019/AbCdEf123.jpg,x,AbCdEf123\n")

	path, ok, err := idx.Lookup("AbCdEf123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "uploads/2019/AbCdEf123.jpg", path)
}

func TestLookupSkipsBlankRows(t *testing.T) {
	idx := writeIndex(t, "handle,path\n,uploads/orphan.jpg\nAbCdEf123,\nXyZ789,uploads/2020/XyZ789.png\n")

	n, err := idx.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLookupMissingFile(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "does-not-exist.csv"))

	_, _, err := idx.Lookup("AbCdEf123")
	assert.Error(t, err)
}
