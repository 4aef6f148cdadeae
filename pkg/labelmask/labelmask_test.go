package labelmask

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/geom"
	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func rect(x1, y1, x2, y2 int) geom.Polygon {
	return geom.Polygon{{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2}}
}

func testFrame() *annotation.FrameAnnotation {
	return &annotation.FrameAnnotation{
		ImageName: "frame_000001.jpg",
		Classes: []annotation.ClassGroup{
			{ClassID: "1", Instances: []annotation.Instance{
				{ID: "Object-1", Polygon: rect(10, 10, 40, 30)},
				{ID: "Object-2", Polygon: rect(60, 10, 90, 50)},
			}},
			{ClassID: "3", Instances: []annotation.Instance{
				{ID: "Object-1", Polygon: geom.Polygon{{X: 20, Y: 60}, {X: 50, Y: 90}, {X: 5, Y: 95}}},
			}},
		},
	}
}

// Every instance must come back with a box that overlaps the original almost perfectly
func requireRoundTrip(t *testing.T, ann *annotation.FrameAnnotation, raw []annotation.RawClass) {
	for _, c := range ann.Classes {
		var found *annotation.RawClass
		for i := range raw {
			if raw[i].ClassID == c.ClassID {
				found = &raw[i]
			}
		}
		require.NotNil(t, found, "class %v", c.ClassID)
		require.Equal(t, len(c.Instances), len(found.Polygons))
		for _, inst := range c.Instances {
			best := float32(0)
			for _, p := range found.Polygons {
				best = max(best, inst.Polygon.Bounds().IOU(p.Bounds()))
			}
			require.GreaterOrEqual(t, best, float32(0.95), "class %v instance %v", c.ClassID, inst.ID)
		}
	}
}

func TestColorRoundTrip(t *testing.T) {
	codec := palette.DefaultCodec()
	ann := testFrame()
	m, err := Rasterize(ann, 100, 100, codec, palette.ModeColor)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, 100, m.Width())
	require.Equal(t, 100, m.Height())
	require.Equal(t, palette.RGB{255, 0, 0}, m.ColorAt(20, 20))
	require.Equal(t, palette.RGB{0, 255, 0}, m.ColorAt(20, 80))
	require.Equal(t, palette.Black, m.ColorAt(0, 0))

	// Survive a trip through PNG
	png, err := m.EncodePNG()
	require.NoError(t, err)
	m2, err := Decode(png)
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, palette.ModeColor, m2.Mode)

	raw, err := Vectorize(m2, codec, DefaultVectorizeOptions())
	require.NoError(t, err)
	require.Len(t, raw, 2)
	require.Equal(t, "1", raw[0].ClassID)
	require.Equal(t, "3", raw[1].ClassID)
	requireRoundTrip(t, ann, raw)
}

func TestScalarRoundTrip(t *testing.T) {
	ann := &annotation.FrameAnnotation{
		Classes: []annotation.ClassGroup{
			{ClassID: "1", Instances: []annotation.Instance{{Polygon: rect(5, 5, 25, 25)}}},
			{ClassID: "2", Instances: []annotation.Instance{{Polygon: rect(40, 40, 70, 60)}}},
		},
	}
	m, err := Rasterize(ann, 80, 80, nil, palette.ModeScalar)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, 1, m.Mat.Channels())
	require.Equal(t, 1, m.ScalarAt(10, 10))
	require.Equal(t, 2, m.ScalarAt(50, 50))

	png, err := m.EncodePNG()
	require.NoError(t, err)
	m2, err := Decode(png)
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, palette.ModeScalar, m2.Mode)

	raw, err := Vectorize(m2, nil, DefaultVectorizeOptions())
	require.NoError(t, err)
	require.Len(t, raw, 2)
	requireRoundTrip(t, ann, raw)
}

func TestScalarLabelsAreContentDependent(t *testing.T) {
	// 16-bit labels 700 and 300 become classes "2" and "1"
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 50, 50, gocv.MatTypeCV16UC1)
	fill := func(x1, y1, x2, y2 int, v uint16) {
		for y := y1; y <= y2; y++ {
			for x := x1; x <= x2; x++ {
				mat.SetShortAt(y, x, int16(v))
			}
		}
	}
	fill(2, 2, 12, 12, 700)
	fill(30, 30, 45, 40, 300)
	m := &LabelMask{Mat: mat, Mode: palette.ModeScalar}
	defer m.Close()
	require.Equal(t, 700, m.ScalarAt(5, 5))

	raw, err := Vectorize(m, nil, DefaultVectorizeOptions())
	require.NoError(t, err)
	require.Len(t, raw, 2)
	require.Equal(t, "1", raw[0].ClassID)
	require.Equal(t, geom.BBox{MinX: 30, MinY: 30, MaxX: 45, MaxY: 40}, raw[0].Polygons[0].Bounds())
	require.Equal(t, "2", raw[1].ClassID)
	require.Equal(t, geom.BBox{MinX: 2, MinY: 2, MaxX: 12, MaxY: 12}, raw[1].Polygons[0].Bounds())
}

func TestOverlapDrawOrder(t *testing.T) {
	codec := palette.DefaultCodec()
	ann := &annotation.FrameAnnotation{
		Classes: []annotation.ClassGroup{
			{ClassID: "1", Instances: []annotation.Instance{{Polygon: rect(0, 0, 30, 30)}}},
			{ClassID: "2", Instances: []annotation.Instance{{Polygon: rect(20, 20, 40, 40)}}},
			{ClassID: "unknown", Instances: []annotation.Instance{{Polygon: rect(45, 45, 49, 49)}}},
		},
	}
	m, err := Rasterize(ann, 50, 50, codec, palette.ModeColor)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, codec.EncodeColor("2"), m.ColorAt(25, 25))
	require.Equal(t, codec.EncodeColor("1"), m.ColorAt(10, 10))
	require.Equal(t, palette.Placeholder, m.ColorAt(47, 47))

	// The placeholder is not a class, so it vectorizes to nothing
	raw, err := Vectorize(m, codec, DefaultVectorizeOptions())
	require.NoError(t, err)
	require.Len(t, raw, 2)
}

func TestHolesAreIgnored(t *testing.T) {
	codec := palette.DefaultCodec()
	m, err := New(60, 60, palette.ModeColor)
	require.NoError(t, err)
	defer m.Close()
	outer := gocv.NewPointsVectorFromPoints([][]image.Point{rect(5, 5, 55, 55).ImagePoints()})
	defer outer.Close()
	inner := gocv.NewPointsVectorFromPoints([][]image.Point{rect(20, 20, 40, 40).ImagePoints()})
	defer inner.Close()
	gocv.FillPoly(&m.Mat, outer, codec.EncodeColor("1").RGBA())
	gocv.FillPoly(&m.Mat, inner, color.RGBA{A: 255})
	// A small speck collapses below 3 points and is dropped
	m.Mat.SetUCharAt3(58, 58, 2, 255)

	raw, err := Vectorize(m, codec, DefaultVectorizeOptions())
	require.NoError(t, err)
	require.Len(t, raw, 1)
	require.Len(t, raw[0].Polygons, 1)
	require.Equal(t, geom.BBox{MinX: 5, MinY: 5, MaxX: 55, MaxY: 55}, raw[0].Polygons[0].Bounds())
}

func TestEmptyMask(t *testing.T) {
	m, err := New(10, 10, palette.ModeColor)
	require.NoError(t, err)
	defer m.Close()
	raw, err := Vectorize(m, palette.DefaultCodec(), DefaultVectorizeOptions())
	require.NoError(t, err)
	require.Len(t, raw, 0)
}

func TestBadInput(t *testing.T) {
	_, err := Decode([]byte("this is not a png"))
	require.True(t, errors.Is(err, ErrUnreadableRaster))

	_, err = Rasterize(testFrame(), 0, 100, palette.DefaultCodec(), palette.ModeColor)
	require.Error(t, err)
	_, err = New(10, -1, palette.ModeScalar)
	require.Error(t, err)
}

func TestDecodeDropsAlpha(t *testing.T) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 255), 8, 8, gocv.MatTypeCV8UC4)
	defer mat.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	require.NoError(t, err)
	png := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	m, err := Decode(png)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, 3, m.Mat.Channels())
	require.Equal(t, palette.RGB{0, 0, 255}, m.ColorAt(3, 3))
}
