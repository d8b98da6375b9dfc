package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.pdf"), "b")
	writeFile(t, filepath.Join(root, "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "nested", "c.pdf"), "c")

	paths, err := NewLoader(root, "").Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.pdf"),
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "nested", "c.pdf"),
	}, paths)
}

func TestDiscover_TopLevelPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "nested", "c.pdf"), "c")

	paths, err := NewLoader(root, "*.pdf").Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.pdf")}, paths)
}

func TestDiscover_MissingRoot(t *testing.T) {
	paths, err := NewLoader(filepath.Join(t.TempDir(), "nope"), "").Discover()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLoader_Match(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(root, "")
	assert.True(t, l.Match(filepath.Join(root, "x.pdf")))
	assert.True(t, l.Match(filepath.Join(root, "deep", "er", "x.pdf")))
	assert.False(t, l.Match(filepath.Join(root, "x.txt")))
	assert.False(t, l.Match(filepath.Join(filepath.Dir(root), "outside.pdf")))
}

func TestLoadFile_PageNumbers(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(root, "")
	l.Extract = func(path string) ([]string, error) {
		return []string{"page one", "", "page three"}, nil
	}

	doc, err := l.LoadFile(filepath.Join(root, "sub", "manual.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "sub/manual.pdf", doc.Source)
	require.Len(t, doc.Pages, 3)
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Equal(t, 3, doc.Pages[2].Number)
	assert.Equal(t, "page three", doc.Pages[2].Text)
}

func TestLoadAll_ContinuesPastFailures(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(root, "")
	l.Extract = func(path string) ([]string, error) {
		if filepath.Base(path) == "corrupt.pdf" {
			return nil, errors.New("xref table broken")
		}
		return []string{"text of " + filepath.Base(path)}, nil
	}

	res := l.LoadAll([]string{
		filepath.Join(root, "a.pdf"),
		filepath.Join(root, "corrupt.pdf"),
		filepath.Join(root, "c.pdf"),
	})
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "a.pdf", res.Documents[0].Source)
	assert.Equal(t, "c.pdf", res.Documents[1].Source)

	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0], ErrIngestion)
	assert.Equal(t, filepath.Join(root, "corrupt.pdf"), res.Failures[0].Path)
	assert.Contains(t, res.Failures[0].Error(), "xref table broken")
}

func TestFingerprint(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.pdf")
	writeFile(t, path, "abc")

	fp, err := NewLoader(root, "").Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", fp.Name)
	assert.Equal(t, int64(3), fp.Size)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fp.SHA256)
}
