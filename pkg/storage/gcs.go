package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
	"google.golang.org/api/iterator"
)

// StorageGCS is a Google Cloud Storage-based blob store.
// GCS object writes are already atomic: an object only appears once its writer is closed.
type StorageGCS struct {
	bucketName string
	bucket     *gcs.BucketHandle
	log        logs.Log
}

func NewStorageGCS(log logs.Log, bucketName string) (*StorageGCS, error) {
	ctx := context.Background()
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	bucket := client.Bucket(bucketName)
	return &StorageGCS{
		bucketName: bucketName,
		bucket:     bucket,
		log:        log,
	}, nil
}

// gcsWriter cancels the upload on Abort, which discards the object
type gcsWriter struct {
	*gcs.Writer
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	return w.Writer.Close()
}

func (w *gcsWriter) Abort() {
	w.cancel()
	w.Writer.Close()
}

func (s *StorageGCS) WriteFile(name string) (io.WriteCloser, error) {
	ctx, cancel := context.WithCancel(context.Background())
	w := s.bucket.Object(name).NewWriter(ctx)
	return &gcsWriter{Writer: w, cancel: cancel}, nil
}

func (s *StorageGCS) ReadFile(name string) (*File, error) {
	ctx := context.Background()
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, name)
		}
		return nil, err
	}
	return &File{
		Reader:     r,
		ModifiedAt: r.Attrs.LastModified,
		Size:       r.Attrs.Size,
	}, nil
}

func (s *StorageGCS) DeleteFile(name string) error {
	ctx := context.Background()
	err := s.bucket.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, name)
	}
	return err
}

func (s *StorageGCS) List(prefix, suffix string) ([]string, error) {
	ctx := context.Background()
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	names := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Failed to list gs://%v/%v: %w", s.bucketName, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, suffix) {
			names = append(names, attrs.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}
