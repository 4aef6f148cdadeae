package labelmask

import (
	"image"
	"image/color"

	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/palette"
	"gocv.io/x/gocv"
)

// Rasterize paints every polygon of the annotation onto a zero canvas of the
// given size. Classes and instances are drawn in order, so later polygons
// overwrite earlier ones where they overlap. Polygons with fewer than 3 points
// are skipped. The caller is responsible for choosing dimensions that match the
// frame; nothing is resized.
func Rasterize(ann *annotation.FrameAnnotation, width, height int, codec *palette.Codec, mode palette.Mode) (*LabelMask, error) {
	m, err := New(width, height, mode)
	if err != nil {
		return nil, err
	}
	for _, c := range ann.Classes {
		fill := classFill(c.ClassID, codec, mode)
		for _, inst := range c.Instances {
			if inst.Polygon.IsDegenerate() {
				continue
			}
			pv := gocv.NewPointsVectorFromPoints([][]image.Point{inst.Polygon.ImagePoints()})
			gocv.FillPoly(&m.Mat, pv, fill)
			pv.Close()
		}
	}
	return m, nil
}

func classFill(classID string, codec *palette.Codec, mode palette.Mode) color.RGBA {
	if mode == palette.ModeScalar {
		v := palette.EncodeScalar(classID)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}
	return codec.EncodeColor(classID).RGBA()
}
