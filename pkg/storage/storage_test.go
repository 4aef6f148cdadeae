package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestStorageFS(t *testing.T) {
	log := logs.NewTestingLog(t)
	root := t.TempDir()
	s, err := NewStorageFS(log, root)
	require.NoError(t, err)

	require.NoError(t, WriteFile(s, "json/frame_000001.json", bytes.NewReader([]byte("one"))))
	require.NoError(t, WriteFile(s, "json/frame_000002.json", bytes.NewReader([]byte("two"))))
	require.NoError(t, WriteFile(s, "masks/frame_000001.png", bytes.NewReader([]byte("png"))))

	b, err := ReadFile(s, "json/frame_000002.json")
	require.NoError(t, err)
	require.Equal(t, "two", string(b))
	require.True(t, Exists(s, "masks/frame_000001.png"))
	require.False(t, Exists(s, "masks/frame_000002.png"))

	names, err := s.List("json/", ".json")
	require.NoError(t, err)
	require.Equal(t, []string{"json/frame_000001.json", "json/frame_000002.json"}, names)
	names, err = s.List("", ".png")
	require.NoError(t, err)
	require.Equal(t, []string{"masks/frame_000001.png"}, names)

	// Overwrite
	require.NoError(t, WriteFile(s, "json/frame_000001.json", bytes.NewReader([]byte("uno"))))
	b, err = ReadFile(s, "json/frame_000001.json")
	require.NoError(t, err)
	require.Equal(t, "uno", string(b))

	_, err = s.ReadFile("json/missing.json")
	require.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, s.DeleteFile("json/frame_000002.json"))
	require.True(t, errors.Is(s.DeleteFile("json/frame_000002.json"), ErrNotFound))

	_, err = s.WriteFile("../escape.json")
	require.Error(t, err)
	_, err = s.ReadFile("")
	require.Error(t, err)
}

func TestStorageFSFailedWriteLeavesNothing(t *testing.T) {
	root := t.TempDir()
	s, err := NewStorageFS(logs.NewTestingLog(t), root)
	require.NoError(t, err)

	require.NoError(t, WriteFile(s, "a.json", bytes.NewReader([]byte("original"))))
	failing := iotest.ErrReader(errors.New("disk on fire"))
	require.Error(t, WriteFile(s, "a.json", failing))
	require.Error(t, WriteFile(s, "b.json", failing))

	b, err := ReadFile(s, "a.json")
	require.NoError(t, err)
	require.Equal(t, "original", string(b))
	require.False(t, Exists(s, "b.json"))

	// No temporary files left behind
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Until Close, the file is invisible
	w, err := s.WriteFile("c.json")
	require.NoError(t, err)
	_, err = w.Write([]byte("pending"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "c.json"))
	require.True(t, errors.Is(err, os.ErrNotExist))
	names, err := s.List("", "")
	require.NoError(t, err)
	require.Equal(t, []string{"a.json"}, names)
	require.NoError(t, w.Close())
	require.True(t, Exists(s, "c.json"))
}

func TestWithPrefix(t *testing.T) {
	s, err := NewStorageFS(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Storage(s), WithPrefix(s, ""))

	p := WithPrefix(s, "/json/")
	require.NoError(t, WriteFile(p, "frame_000003.json", bytes.NewReader([]byte("x"))))
	require.True(t, Exists(s, "json/frame_000003.json"))
	names, err := p.List("frame_", ".json")
	require.NoError(t, err)
	require.Equal(t, []string{"frame_000003.json"}, names)
	b, err := ReadFile(p, "frame_000003.json")
	require.NoError(t, err)
	require.Equal(t, "x", string(b))
	require.NoError(t, p.DeleteFile("frame_000003.json"))
	require.False(t, Exists(s, "json/frame_000003.json"))
}
