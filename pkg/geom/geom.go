package geom

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/chewxy/math32"
)

type Point struct {
	X int
	Y int
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(float32((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)))
}

func (p Point) ImagePoint() image.Point {
	return image.Point{X: p.X, Y: p.Y}
}

// Polygon is an implicitly closed ring of points
type Polygon []Point

// MinPolygonPoints is the smallest number of points that forms a valid ring
const MinPolygonPoints = 3

func (p Polygon) IsDegenerate() bool {
	return len(p) < MinPolygonPoints
}

// Bounds returns the box formed by the extrema of the polygon's points.
// An empty polygon produces a zero box.
func (p Polygon) Bounds() BBox {
	if len(p) == 0 {
		return BBox{}
	}
	b := BBox{MinX: p[0].X, MinY: p[0].Y, MaxX: p[0].X, MaxY: p[0].Y}
	for _, pt := range p[1:] {
		b.MinX = min(b.MinX, pt.X)
		b.MinY = min(b.MinY, pt.Y)
		b.MaxX = max(b.MaxX, pt.X)
		b.MaxY = max(b.MaxY, pt.Y)
	}
	return b
}

func (p Polygon) ImagePoints() []image.Point {
	r := make([]image.Point, len(p))
	for i, pt := range p {
		r[i] = pt.ImagePoint()
	}
	return r
}

func PolygonFromImagePoints(pts []image.Point) Polygon {
	r := make(Polygon, len(pts))
	for i, pt := range pts {
		r[i] = Point{X: pt.X, Y: pt.Y}
	}
	return r
}

// BBox is an axis-aligned box, stored as extrema.
// On the wire it is [minX, minY, maxX, maxY].
type BBox struct {
	MinX int
	MinY int
	MaxX int
	MaxY int
}

func (b BBox) Width() int {
	return b.MaxX - b.MinX
}

func (b BBox) Height() int {
	return b.MaxY - b.MinY
}

func (b BBox) Area() int {
	return b.Width() * b.Height()
}

func (b BBox) IsValid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

func (b BBox) Intersection(o BBox) BBox {
	r := BBox{
		MinX: max(b.MinX, o.MinX),
		MinY: max(b.MinY, o.MinY),
		MaxX: min(b.MaxX, o.MaxX),
		MaxY: min(b.MaxY, o.MaxY),
	}
	if r.MaxX < r.MinX {
		r.MaxX = r.MinX
	}
	if r.MaxY < r.MinY {
		r.MaxY = r.MinY
	}
	return r
}

// Intersection over Union. Returns 0 when the boxes do not overlap.
func (b BBox) IOU(o BBox) float32 {
	inter := b.Intersection(o).Area()
	if inter == 0 {
		return 0
	}
	return float32(inter) / float32(b.Area()+o.Area()-inter)
}

func (b BBox) Center() (float32, float32) {
	return float32(b.MinX+b.MaxX) / 2, float32(b.MinY+b.MaxY) / 2
}

// CenterDistance is the distance between box centers, divided by the mean of
// the four side lengths of the two boxes. epsilon guards against division by zero.
func (b BBox) CenterDistance(o BBox, epsilon float32) float32 {
	ax, ay := b.Center()
	bx, by := o.Center()
	d := math32.Hypot(ax-bx, ay-by)
	scale := float32(b.Width()+b.Height()+o.Width()+o.Height())/4 + epsilon
	return d / scale
}

// Proximity is 1 for concentric boxes, falling linearly to 0 at a normalized
// center distance of 1. Anything at or beyond cutoff is 0.
func (b BBox) Proximity(o BBox, cutoff, epsilon float32) float32 {
	d := b.CenterDistance(o, epsilon)
	if d >= cutoff {
		return 0
	}
	return max(0, 1-d)
}

func (b BBox) String() string {
	return fmt.Sprintf("[%v,%v,%v,%v]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.MinX, b.MinY, b.MaxX, b.MaxY})
}

// UnmarshalJSON accepts fractional coordinates, which are rounded
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox must have 4 elements, not %v", len(v))
	}
	b.MinX = int(math.Round(v[0]))
	b.MinY = int(math.Round(v[1]))
	b.MaxX = int(math.Round(v[2]))
	b.MaxY = int(math.Round(v[3]))
	return nil
}
