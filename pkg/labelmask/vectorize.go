package labelmask

import (
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/geom"
	"github.com/cyclopcam/masksync/pkg/palette"
	"gocv.io/x/gocv"
)

type VectorizeOptions struct {
	SimplifyFraction float64 `json:"simplifyFraction"` // Simplification tolerance, as a fraction of each contour's perimeter
	MinPoints        int     `json:"minPoints"`        // Simplified contours with fewer points are discarded
}

func DefaultVectorizeOptions() VectorizeOptions {
	return VectorizeOptions{
		SimplifyFraction: 0.005,
		MinPoints:        geom.MinPolygonPoints,
	}
}

// Vectorize extracts the outer boundary of every region of every encoding in
// the mask. Color masks are visited in color table order, and scalar masks in
// ascending label order. Holes are not represented. Encodings that produce no
// valid polygon are omitted.
func Vectorize(m *LabelMask, codec *palette.Codec, opt VectorizeOptions) ([]annotation.RawClass, error) {
	if opt.MinPoints < geom.MinPolygonPoints {
		opt.MinPoints = geom.MinPolygonPoints
	}
	result := []annotation.RawClass{}
	indicator := gocv.NewMat()
	defer indicator.Close()

	emit := func(classID string) {
		if gocv.CountNonZero(indicator) == 0 {
			return
		}
		polys := contourPolygons(indicator, opt)
		if len(polys) != 0 {
			result = append(result, annotation.RawClass{ClassID: classID, Polygons: polys})
		}
	}

	if m.Mode == palette.ModeScalar {
		values, err := m.scalarValues()
		if err != nil {
			return nil, err
		}
		labels := palette.NewScalarLabels(values)
		for _, v := range labels.Values() {
			s := gocv.NewScalar(float64(v), 0, 0, 0)
			gocv.InRangeWithScalar(m.Mat, s, s, &indicator)
			classID, _ := labels.Decode(v)
			emit(classID)
		}
		return result, nil
	}

	for _, e := range codec.Table() {
		// Mats are BGR
		s := gocv.NewScalar(float64(e.Color[2]), float64(e.Color[1]), float64(e.Color[0]), 0)
		gocv.InRangeWithScalar(m.Mat, s, s, &indicator)
		emit(e.ClassID)
	}
	return result, nil
}

// contourPolygons finds the external contours of a binary image, and simplifies
// each one with a tolerance proportional to its own perimeter.
func contourPolygons(binary gocv.Mat, opt VectorizeOptions) []geom.Polygon {
	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	polys := []geom.Polygon{}
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		epsilon := opt.SimplifyFraction * gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, epsilon, true)
		pts := approx.ToPoints()
		approx.Close()
		if len(pts) < opt.MinPoints {
			continue
		}
		polys = append(polys, geom.PolygonFromImagePoints(pts))
	}
	return polys
}
