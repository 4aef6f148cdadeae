package framestore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/geom"
	"github.com/cyclopcam/masksync/pkg/labelmask"
	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/cyclopcam/masksync/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, storage.Storage) {
	log := logs.NewTestingLog(t)
	root, err := storage.NewStorageFS(log, t.TempDir())
	require.NoError(t, err)
	return NewStore(log, root, DefaultLayout()), root
}

func oneBox(id string, x int) *annotation.FrameAnnotation {
	return &annotation.FrameAnnotation{
		ImageName: "x.jpg",
		Classes: []annotation.ClassGroup{{ClassID: "1", Instances: []annotation.Instance{
			{ID: id, Name: id, Polygon: geom.Polygon{{X: x, Y: 0}, {X: x + 10, Y: 0}, {X: x + 10, Y: 10}, {X: x, Y: 10}}},
		}}},
	}
}

func TestAnnotationsAndMeta(t *testing.T) {
	s, root := newTestStore(t)
	require.NoError(t, s.WriteAnnotation("frame_000002", oneBox("B", 20)))
	require.NoError(t, s.WriteAnnotation("frame_000001", oneBox("A", 0)))
	require.True(t, s.HasAnnotation("frame_000001"))
	require.True(t, storage.Exists(root, "json/frame_000001.json"))

	cache := s.PreviousCache("frame_000002")
	require.Len(t, cache, 1)
	require.Equal(t, "A", cache[0].InstanceID)
	require.Len(t, s.PreviousCache("frame_000001"), 0)
	require.Len(t, s.PreviousCache("not_a_frame"), 0)

	meta, err := s.BuildMeta()
	require.NoError(t, err)
	require.NoError(t, s.WriteMeta(meta))
	keys, err := s.AnnotationKeys()
	require.NoError(t, err)
	require.Equal(t, []string{"frame_000001", "frame_000002"}, keys)

	meta2, err := s.ReadMeta()
	require.NoError(t, err)
	require.Equal(t, meta, meta2)
	require.Equal(t, "A", meta2["frame_000002"][0].InstanceID)
	require.Equal(t, "B", meta2["frame_000003"][0].InstanceID)

	// A corrupt previous annotation degrades to an empty cache
	require.NoError(t, storage.WriteFile(s.Annotations, "frame_000002.json", bytes.NewReader([]byte("{nope"))))
	require.Len(t, s.PreviousCache("frame_000003"), 0)
	meta, err = s.BuildMeta()
	require.NoError(t, err)
	require.Len(t, meta, 1)
}

func TestEmptyMeta(t *testing.T) {
	s, _ := newTestStore(t)
	meta, err := s.ReadMeta()
	require.NoError(t, err)
	require.Len(t, meta, 0)
}

func TestMasks(t *testing.T) {
	s, _ := newTestStore(t)
	m, err := labelmask.Rasterize(oneBox("A", 5), 40, 30, palette.DefaultCodec(), palette.ModeColor)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, s.WriteMask("frame_000004", m))
	require.True(t, s.HasMask("frame_000004"))

	m2, err := s.ReadMask("frame_000004")
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, 40, m2.Width())
	require.Equal(t, 30, m2.Height())

	_, err = s.ReadMask("frame_000005")
	require.True(t, errors.Is(err, ErrInputNotFound))

	require.NoError(t, storage.WriteFile(s.Masks, "frame_000006.png", bytes.NewReader([]byte("garbage"))))
	_, err = s.ReadMask("frame_000006")
	require.True(t, errors.Is(err, labelmask.ErrUnreadableRaster))

	keys, err := s.MaskKeys()
	require.NoError(t, err)
	require.Equal(t, []string{"frame_000004", "frame_000006"}, keys)
}

func TestFrameSize(t *testing.T) {
	s, _ := newTestStore(t)
	img := cimg.NewImage(64, 48, cimg.PixelFormatRGB)
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
	require.NoError(t, err)
	require.NoError(t, storage.WriteFile(s.Frames, "frame_000001.jpg", bytes.NewReader(jpg)))

	w, h, err := s.FrameSize("frame_000001")
	require.NoError(t, err)
	require.Equal(t, 64, w)
	require.Equal(t, 48, h)

	_, _, err = s.FrameSize("frame_000002")
	require.True(t, errors.Is(err, ErrInputNotFound))
}

func TestSortKeys(t *testing.T) {
	keys := []string{"frame_000010", "zzz", "frame_000002", "aaa", "frame_000009"}
	SortKeys(keys)
	require.Equal(t, []string{"frame_000002", "frame_000009", "frame_000010", "aaa", "zzz"}, keys)
}
