package sequence

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/palette"
	"golang.org/x/sync/errgroup"
)

// MaskSize fixes the size of rasterized masks. If zero, each mask takes the size of its source frame.
type MaskSize struct {
	Width  int
	Height int
}

// RasterizeFrame turns a frame's annotation back into a mask, and writes it to the store
func (r *Runner) RasterizeFrame(key string, mode palette.Mode, size MaskSize) error {
	start := time.Now()
	defer r.rasterizeTime.Since(start)
	ann, err := r.Store.ReadAnnotation(key)
	if err != nil {
		return err
	}
	width, height := size.Width, size.Height
	if width <= 0 || height <= 0 {
		width, height, err = r.Store.FrameSize(key)
		if err != nil {
			return err
		}
	}
	mask, err := r.Converter.AnnotationToMask(ann, width, height, mode)
	if err != nil {
		return fmt.Errorf("Failed to rasterize %v: %w", key, err)
	}
	defer mask.Close()
	return r.Store.WriteMask(key, mask)
}

// Rasterize regenerates the mask of every annotated frame. Frames have no
// dependency on each other in this direction, so they all run in parallel.
func (r *Runner) Rasterize(ctx context.Context, mode palette.Mode, size MaskSize) (*Report, error) {
	keys := slices.Clone(r.Options.Keys)
	if len(keys) == 0 {
		var err error
		keys, err = r.Store.AnnotationKeys()
		if err != nil {
			return nil, fmt.Errorf("Failed to list annotations: %w", err)
		}
	}
	framestore.SortKeys(keys)
	r.rasterizeTime.Reset()

	workers := r.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]FrameResult, len(keys))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, key := range keys {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.RasterizeFrame(key, mode, size); err != nil {
				results[i] = r.failed(key, err)
			} else {
				results[i] = FrameResult{Key: key, Status: FrameConverted}
			}
			return nil
		})
	}
	err := group.Wait()

	report := &Report{RunID: r.runID(), Frames: []FrameResult{}}
	for _, res := range results {
		if res.Key == "" {
			// Never started, because of cancellation
			continue
		}
		report.add(res)
		if r.OnFrame != nil {
			r.OnFrame(res)
		}
	}
	report.RasterizeTime = r.rasterizeTime.Total()
	r.Log.Infof("Rasterized %v frames, %v failed", report.Converted, report.Failed)
	return report, err
}
