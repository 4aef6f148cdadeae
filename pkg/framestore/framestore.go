// Package framestore maps frame keys onto the files of an annotated sequence:
// the source frames, their label masks, their polygon annotations, and the meta cache.
package framestore

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/labelmask"
	"github.com/cyclopcam/masksync/pkg/storage"
)

// MetaFilename is the name of the meta cache, which lives alongside the annotations
const MetaFilename = "meta.json"

// ErrInputNotFound is returned when a frame, mask, or annotation does not exist
var ErrInputNotFound = storage.ErrNotFound

// Layout names the sub-directories of a sequence that lives in a single store
type Layout struct {
	Frames      string `json:"frames"`
	Masks       string `json:"masks"`
	Annotations string `json:"annotations"`
}

func DefaultLayout() Layout {
	return Layout{
		Frames:      "frames",
		Masks:       "masks",
		Annotations: "json",
	}
}

type Store struct {
	Log         logs.Log
	Frames      storage.Storage // frame_000001.jpg
	Masks       storage.Storage // frame_000001.png
	Annotations storage.Storage // frame_000001.json, and meta.json
}

// NewStore lays a sequence out inside a single blob store
func NewStore(log logs.Log, root storage.Storage, layout Layout) *Store {
	return &Store{
		Log:         log,
		Frames:      storage.WithPrefix(root, layout.Frames),
		Masks:       storage.WithPrefix(root, layout.Masks),
		Annotations: storage.WithPrefix(root, layout.Annotations),
	}
}

// SortKeys orders frame keys by frame index. Keys without an index sort last, by name.
func SortKeys(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		ia, oka := annotation.ParseFrameIndex(a)
		ib, okb := annotation.ParseFrameIndex(b)
		switch {
		case oka && okb:
			if ia != ib {
				return ia - ib
			}
		case oka:
			return -1
		case okb:
			return 1
		}
		return strings.Compare(a, b)
	})
}

func listKeys(s storage.Storage, ext string, exclude string) ([]string, error) {
	names, err := s.List("", ext)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, n := range names {
		if strings.Contains(n, "/") || n == exclude {
			continue
		}
		keys = append(keys, annotation.KeyFromFilename(n))
	}
	SortKeys(keys)
	return keys, nil
}

// MaskKeys returns the keys of every mask, in frame order
func (s *Store) MaskKeys() ([]string, error) {
	return listKeys(s.Masks, ".png", "")
}

// AnnotationKeys returns the keys of every polygon annotation, in frame order
func (s *Store) AnnotationKeys() ([]string, error) {
	return listKeys(s.Annotations, ".json", MetaFilename)
}

func (s *Store) ReadMask(key string) (*labelmask.LabelMask, error) {
	b, err := storage.ReadFile(s.Masks, annotation.MaskFilename(key))
	if err != nil {
		return nil, fmt.Errorf("Failed to read mask %v: %w", key, err)
	}
	m, err := labelmask.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode mask %v: %w", key, err)
	}
	return m, nil
}

func (s *Store) WriteMask(key string, m *labelmask.LabelMask) error {
	b, err := m.EncodePNG()
	if err != nil {
		return fmt.Errorf("Failed to encode mask %v: %w", key, err)
	}
	return storage.WriteFile(s.Masks, annotation.MaskFilename(key), bytes.NewReader(b))
}

func (s *Store) ReadAnnotation(key string) (*annotation.FrameAnnotation, error) {
	b, err := storage.ReadFile(s.Annotations, annotation.AnnotationFilename(key))
	if err != nil {
		return nil, fmt.Errorf("Failed to read annotation %v: %w", key, err)
	}
	ann, err := annotation.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse annotation %v: %w", key, err)
	}
	return ann, nil
}

func (s *Store) WriteAnnotation(key string, ann *annotation.FrameAnnotation) error {
	b, err := annotation.Encode(ann)
	if err != nil {
		return err
	}
	return storage.WriteFile(s.Annotations, annotation.AnnotationFilename(key), bytes.NewReader(b))
}

func (s *Store) HasAnnotation(key string) bool {
	return storage.Exists(s.Annotations, annotation.AnnotationFilename(key))
}

func (s *Store) HasMask(key string) bool {
	return storage.Exists(s.Masks, annotation.MaskFilename(key))
}

// FrameSize returns the dimensions of the source frame, which a rasterized mask must match
func (s *Store) FrameSize(key string) (int, int, error) {
	b, err := storage.ReadFile(s.Frames, annotation.ImageFilename(key))
	if err != nil {
		return 0, 0, fmt.Errorf("Failed to read frame %v: %w", key, err)
	}
	img, err := cimg.Decompress(b)
	if err != nil {
		return 0, 0, fmt.Errorf("Failed to decode frame %v: %w", key, err)
	}
	return img.Width, img.Height, nil
}

// PreviousCache builds the identity cache for a frame, from the persisted
// annotation of the frame before it. If that annotation is missing or
// unreadable, the cache is empty.
func (s *Store) PreviousCache(key string) []annotation.MetaRecord {
	prev, ok := annotation.PreviousKey(key)
	if !ok {
		return annotation.BuildCache(nil)
	}
	ann, err := s.ReadAnnotation(prev)
	if err != nil {
		if !errors.Is(err, ErrInputNotFound) {
			s.Log.Warnf("Frame %v will mint new identities: %v", key, err)
		}
		return annotation.BuildCache(nil)
	}
	return annotation.BuildCache(ann)
}

// ReadMeta returns an empty meta file if none exists
func (s *Store) ReadMeta() (annotation.MetaFile, error) {
	b, err := storage.ReadFile(s.Annotations, MetaFilename)
	if errors.Is(err, storage.ErrNotFound) {
		return annotation.MetaFile{}, nil
	} else if err != nil {
		return nil, err
	}
	return annotation.ParseMetaFile(b)
}

func (s *Store) WriteMeta(meta annotation.MetaFile) error {
	b, err := annotation.EncodeMetaFile(meta)
	if err != nil {
		return err
	}
	return storage.WriteFile(s.Annotations, MetaFilename, bytes.NewReader(b))
}

// BuildMeta derives the meta cache from every annotation in the store.
// Annotations that cannot be read are skipped.
func (s *Store) BuildMeta() (annotation.MetaFile, error) {
	keys, err := s.AnnotationKeys()
	if err != nil {
		return nil, err
	}
	frames := map[int]*annotation.FrameAnnotation{}
	for _, key := range keys {
		idx, ok := annotation.ParseFrameIndex(key)
		if !ok {
			continue
		}
		ann, err := s.ReadAnnotation(key)
		if err != nil {
			s.Log.Warnf("Skipping %v while building meta: %v", key, err)
			continue
		}
		frames[idx] = ann
	}
	return annotation.BuildMetaFile(frames), nil
}
