// Package convert ties the codec, the vectorizer, and the reconciler together,
// to turn one frame's mask into polygons and back.
package convert

import (
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/labelmask"
	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/cyclopcam/masksync/pkg/reconcile"
)

// Converter is stateless between frames, and safe for concurrent use
type Converter struct {
	Log        logs.Log
	Settings   *Settings
	codec      *palette.Codec
	reconciler *reconcile.Reconciler
}

func NewConverter(log logs.Log, settings *Settings) (*Converter, error) {
	codec, err := palette.NewCodec(settings.Colors)
	if err != nil {
		return nil, err
	}
	return &Converter{
		Log:        log,
		Settings:   settings,
		codec:      codec,
		reconciler: reconcile.NewReconciler(log, settings.Reconcile),
	}, nil
}

func (c *Converter) Codec() *palette.Codec {
	return c.codec
}

// SetVerbose logs every identity decision
func (c *Converter) SetVerbose(verbose bool) {
	c.reconciler.Verbose = verbose
}

// Vectorize extracts raw, identity-less polygons from a mask
func (c *Converter) Vectorize(mask *labelmask.LabelMask) ([]annotation.RawClass, error) {
	return labelmask.Vectorize(mask, c.codec, c.Settings.Vectorize)
}

// Reconcile assigns identities to raw polygons, and builds the frame's annotation
func (c *Converter) Reconcile(imageName string, raw []annotation.RawClass, cache []annotation.MetaRecord) (*annotation.FrameAnnotation, *reconcile.Result) {
	res := c.reconciler.Reconcile(raw, cache)
	ann := &annotation.FrameAnnotation{
		ImageName: imageName,
		Classes:   res.Classes,
	}
	return ann, res
}

// MaskToAnnotation converts a mask into polygons. Identities are carried forward
// from cache where the geometry matches, and minted otherwise.
func (c *Converter) MaskToAnnotation(mask *labelmask.LabelMask, imageName string, cache []annotation.MetaRecord) (*annotation.FrameAnnotation, *reconcile.Result, error) {
	raw, err := c.Vectorize(mask)
	if err != nil {
		return nil, nil, err
	}
	ann, res := c.Reconcile(imageName, raw, cache)
	return ann, res, nil
}

// AnnotationToMask rasterizes polygons onto a canvas the size of the frame
func (c *Converter) AnnotationToMask(ann *annotation.FrameAnnotation, width, height int, mode palette.Mode) (*labelmask.LabelMask, error) {
	return labelmask.Rasterize(ann, width, height, c.codec, mode)
}
