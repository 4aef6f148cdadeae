// Package sequence converts a whole range of frames.
//
// Vectorization of every frame is independent, so it runs on a pool of workers,
// ahead of reconciliation. Reconciliation of frame N needs the finalized
// annotation of frame N-1, so it runs on a single goroutine, in frame order, and
// reads that annotation back from the store. No identity state is carried in memory
// from one frame to the next.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/convert"
	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/perfstats"
	"github.com/cyclopcam/masksync/pkg/reconcile"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

type FrameStatus string

const (
	FrameConverted FrameStatus = "converted"
	FrameSeed      FrameStatus = "seed"   // Existing annotation kept as-is
	FrameFailed    FrameStatus = "failed" // Logged, and skipped
)

// FrameResult describes what happened to one frame
type FrameResult struct {
	Key       string      `json:"key"`
	Status    FrameStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CacheSize int         `json:"cacheSize"`
	Classes   int         `json:"classes"`
	Carried   int         `json:"carried"`
	Minted    int         `json:"minted"`
	Scores    []float32   `json:"-"` // Scores of accepted matches
}

type Report struct {
	RunID         string        `json:"runId"`
	Frames        []FrameResult `json:"frames"`
	Converted     int           `json:"converted"`
	Seeds         int           `json:"seeds"`
	Failed        int           `json:"failed"`
	Carried       int           `json:"carried"`
	Minted        int           `json:"minted"`
	MeanScore     float64       `json:"meanScore"`   // Mean score of accepted matches
	MedianScore   float64       `json:"medianScore"` // Median score of accepted matches
	VectorizeTime time.Duration `json:"vectorizeTime"`
	ReconcileTime time.Duration `json:"reconcileTime"`
	RasterizeTime time.Duration `json:"rasterizeTime"`
}

type Options struct {
	Workers int      // Vectorization workers. Zero means one per CPU.
	Keys    []string // Frames to convert. Empty means every mask in the store.
	RunID   string   // Identifies the run in logs and reports. Empty means a new random id.

	// If not nil, the cache of each frame is taken from here, instead of from the
	// annotation of the previous frame.
	Meta annotation.MetaFile
}

type Runner struct {
	Log       logs.Log
	Converter *convert.Converter
	Store     *framestore.Store
	Options   Options

	// OnFrame is called after each frame is finished, in frame order, from a single goroutine
	OnFrame func(FrameResult)

	vectorizeTime perfstats.TimeAccumulator
	reconcileTime perfstats.TimeAccumulator
	rasterizeTime perfstats.TimeAccumulator
}

func NewRunner(log logs.Log, converter *convert.Converter, store *framestore.Store, options Options) *Runner {
	return &Runner{
		Log:       log,
		Converter: converter,
		Store:     store,
		Options:   options,
	}
}

// vectorized is the output of the first stage, for one frame
type vectorized struct {
	ready chan struct{} // closed when raw/err are populated
	skip  bool          // seed frame, so there is nothing to vectorize
	raw   []annotation.RawClass
	err   error
}

// Run converts every frame. Failures of individual frames are logged and
// recorded in the report, and do not stop the run. Run only returns an error if
// the frames cannot be listed, or the context is cancelled. Annotations written
// before cancellation are complete and valid.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	keys := slices.Clone(r.Options.Keys)
	if len(keys) == 0 {
		var err error
		keys, err = r.Store.MaskKeys()
		if err != nil {
			return nil, fmt.Errorf("Failed to list masks: %w", err)
		}
	}
	framestore.SortKeys(keys)
	report := &Report{
		RunID:  r.runID(),
		Frames: []FrameResult{},
	}
	r.vectorizeTime.Reset()
	r.reconcileTime.Reset()
	r.Log.Infof("Sequence run %v: %v frames", report.RunID, len(keys))

	frames := make([]*vectorized, len(keys))
	for i, key := range keys {
		frames[i] = &vectorized{ready: make(chan struct{})}
		if i == 0 && r.isSeed(key) {
			frames[i].skip = true
			close(frames[i].ready)
		}
	}

	workers := r.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var group errgroup.Group
	group.SetLimit(workers)
	feederDone := make(chan struct{})
	go func() {
		defer close(feederDone)
		for i, key := range keys {
			if frames[i].skip {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			f := frames[i]
			group.Go(func() error {
				defer close(f.ready)
				if ctx.Err() != nil {
					f.err = ctx.Err()
					return nil
				}
				f.raw, f.err = r.vectorize(key)
				return nil
			})
		}
	}()

	var runErr error
	for i, key := range keys {
		f := frames[i]
		select {
		case <-f.ready:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		var res FrameResult
		if f.skip {
			res = FrameResult{Key: key, Status: FrameSeed}
			r.Log.Infof("Frame %v is the seed, keeping its annotation", key)
		} else if f.err != nil {
			res = r.failed(key, f.err)
		} else {
			res = r.finish(key, f.raw, r.cacheFor(key))
		}
		f.raw = nil
		report.add(res)
		if r.OnFrame != nil {
			r.OnFrame(res)
		}
	}

	<-feederDone
	group.Wait()

	report.VectorizeTime = r.vectorizeTime.Total()
	report.ReconcileTime = r.reconcileTime.Total()
	report.summarize()
	r.Log.Infof("Sequence run %v: %v converted, %v seed, %v failed, %v carried, %v minted, mean score %.3f",
		report.RunID, report.Converted, report.Seeds, report.Failed, report.Carried, report.Minted, report.MeanScore)
	return report, runErr
}

// ConvertFrame converts a single frame, with the same cache rules as Run.
// Unlike Run, a failure is returned to the caller.
func (r *Runner) ConvertFrame(key string) (*FrameResult, error) {
	raw, err := r.vectorize(key)
	if err != nil {
		return nil, err
	}
	res := r.finish(key, raw, r.cacheFor(key))
	if res.Status == FrameFailed {
		return nil, errors.New(res.Error)
	}
	return &res, nil
}

func (r *Runner) runID() string {
	if r.Options.RunID != "" {
		return r.Options.RunID
	}
	return uuid.NewString()
}

// isSeed is true for a manually annotated first frame, which is never reconciled
func (r *Runner) isSeed(key string) bool {
	if r.Options.Meta != nil || !r.Store.HasAnnotation(key) {
		return false
	}
	prev, ok := annotation.PreviousKey(key)
	return !ok || !r.Store.HasAnnotation(prev)
}

func (r *Runner) cacheFor(key string) []annotation.MetaRecord {
	if r.Options.Meta != nil {
		cache, ok := r.Options.Meta[key]
		if !ok {
			r.Log.Debugf("No cache for %v in meta, all identities will be new", key)
			return annotation.BuildCache(nil)
		}
		return cache
	}
	return r.Store.PreviousCache(key)
}

func (r *Runner) vectorize(key string) ([]annotation.RawClass, error) {
	start := time.Now()
	defer r.vectorizeTime.Since(start)
	mask, err := r.Store.ReadMask(key)
	if err != nil {
		return nil, err
	}
	defer mask.Close()
	return r.Converter.Vectorize(mask)
}

// finish reconciles one frame and persists its annotation
func (r *Runner) finish(key string, raw []annotation.RawClass, cache []annotation.MetaRecord) FrameResult {
	start := time.Now()
	ann, res := r.Converter.Reconcile(annotation.ImageFilename(key), raw, cache)
	r.reconcileTime.Since(start)
	if err := r.Store.WriteAnnotation(key, ann); err != nil {
		return r.failed(key, err)
	}
	fr := FrameResult{
		Key:       key,
		Status:    FrameConverted,
		CacheSize: len(cache),
		Classes:   len(ann.Classes),
		Carried:   res.Carried,
		Minted:    res.Minted,
		Scores:    acceptedScores(res),
	}
	r.Log.Debugf("Frame %v: %v classes, %v carried, %v minted", key, fr.Classes, fr.Carried, fr.Minted)
	return fr
}

func (r *Runner) failed(key string, err error) FrameResult {
	r.Log.Warnf("Frame %v failed: %v", key, err)
	return FrameResult{Key: key, Status: FrameFailed, Error: err.Error()}
}

func acceptedScores(res *reconcile.Result) []float32 {
	scores := []float32{}
	for _, m := range res.Matches {
		if m.Carried() {
			scores = append(scores, m.Score)
		}
	}
	return scores
}

func (rep *Report) add(res FrameResult) {
	rep.Frames = append(rep.Frames, res)
	switch res.Status {
	case FrameConverted:
		rep.Converted++
	case FrameSeed:
		rep.Seeds++
	case FrameFailed:
		rep.Failed++
	}
	rep.Carried += res.Carried
	rep.Minted += res.Minted
}

func (rep *Report) summarize() {
	scores := []float64{}
	for _, f := range rep.Frames {
		for _, s := range f.Scores {
			scores = append(scores, float64(s))
		}
	}
	if len(scores) == 0 {
		return
	}
	slices.Sort(scores)
	rep.MeanScore = stat.Mean(scores, nil)
	rep.MedianScore = stat.Quantile(0.5, stat.Empirical, scores, nil)
}
