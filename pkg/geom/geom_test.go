package geom

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 int) BBox {
	return BBox{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

func TestBounds(t *testing.T) {
	p := Polygon{{5, 7}, {1, 9}, {3, 2}, {8, 4}}
	require.Equal(t, box(1, 2, 8, 9), p.Bounds())
	require.True(t, p.Bounds().IsValid())
	require.False(t, p.IsDegenerate())
	require.True(t, Polygon{{1, 1}, {2, 2}}.IsDegenerate())
	require.Equal(t, BBox{}, Polygon{}.Bounds())
}

func TestIOU(t *testing.T) {
	a := box(0, 0, 10, 10)
	require.Equal(t, float32(1), a.IOU(a))
	require.InDelta(t, 81.0/119.0, a.IOU(box(1, 1, 11, 11)), 1e-6)
	require.Equal(t, float32(0), a.IOU(box(50, 50, 60, 60)))
	// Touching edges have no area in common
	require.Equal(t, float32(0), a.IOU(box(10, 0, 20, 10)))
	// Zero-area boxes never divide by zero
	require.Equal(t, float32(0), box(3, 3, 3, 3).IOU(box(3, 3, 3, 3)))
}

func TestProximity(t *testing.T) {
	a := box(0, 0, 10, 10)
	require.InDelta(t, 1.0, a.Proximity(a, 2, 1e-6), 1e-6)
	// centers 1.414 apart, scale 10
	require.InDelta(t, 1-0.14142, a.Proximity(box(1, 1, 11, 11), 2, 1e-6), 1e-4)
	require.Equal(t, float32(0), a.Proximity(box(50, 50, 60, 60), 2, 1e-6))
	require.InDelta(t, 7.0711, a.CenterDistance(box(50, 50, 60, 60), 1e-6), 1e-3)
	// Degenerate boxes are guarded by epsilon
	require.Equal(t, float32(0), box(3, 3, 3, 3).CenterDistance(box(3, 3, 3, 3), 1e-6))
}

func TestBBoxJSON(t *testing.T) {
	b, err := json.Marshal(box(1, 2, 3, 4))
	require.NoError(t, err)
	require.Equal(t, "[1,2,3,4]", string(b))

	var r BBox
	require.NoError(t, json.Unmarshal([]byte("[1.4, 2.6, 3, 4]"), &r))
	require.Equal(t, box(1, 3, 3, 4), r)
	require.Error(t, json.Unmarshal([]byte("[1,2,3]"), &r))
}
