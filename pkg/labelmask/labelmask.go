// Package labelmask is the raster side of a frame. It converts between label
// masks and per-class polygons using OpenCV.
package labelmask

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/masksync/pkg/palette"
	"gocv.io/x/gocv"
)

// ErrUnreadableRaster is returned when mask bytes cannot be decoded into a supported layout
var ErrUnreadableRaster = errors.New("Unreadable raster")

// LabelMask owns an OpenCV matrix. Color masks are 8-bit BGR, and scalar masks
// are 8 or 16 bit single channel. Call Close when done.
type LabelMask struct {
	Mat  gocv.Mat
	Mode palette.Mode
}

// New creates a zero (all background) mask
func New(width, height int, mode palette.Mode) (*LabelMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("Invalid mask dimensions %v x %v", width, height)
	}
	mt := gocv.MatTypeCV8UC3
	if mode == palette.ModeScalar {
		mt = gocv.MatTypeCV8UC1
	}
	return &LabelMask{
		Mat:  gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, mt),
		Mode: mode,
	}, nil
}

// Decode reads a lossless image (normally PNG). The codec mode follows from the
// channel count. Alpha is discarded.
func Decode(data []byte) (*LabelMask, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableRaster, err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrUnreadableRaster
	}
	mode, err := palette.ModeForChannels(mat.Channels())
	if err != nil {
		mat.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreadableRaster, err)
	}
	switch {
	case mode == palette.ModeScalar && (mat.Type() == gocv.MatTypeCV8UC1 || mat.Type() == gocv.MatTypeCV16UC1):
	case mat.Type() == gocv.MatTypeCV8UC3:
	case mat.Type() == gocv.MatTypeCV8UC4:
		bgr := gocv.NewMat()
		gocv.CvtColor(mat, &bgr, gocv.ColorBGRAToBGR)
		mat.Close()
		mat = bgr
	default:
		mat.Close()
		return nil, fmt.Errorf("%w: unsupported pixel type %v", ErrUnreadableRaster, mat.Type())
	}
	return &LabelMask{Mat: mat, Mode: mode}, nil
}

// EncodePNG produces a lossless image of the mask
func (m *LabelMask) EncodePNG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m.Mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	// GetBytes aliases native memory, which Close releases
	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *LabelMask) Width() int {
	return m.Mat.Cols()
}

func (m *LabelMask) Height() int {
	return m.Mat.Rows()
}

func (m *LabelMask) Close() {
	m.Mat.Close()
}

// ColorAt returns the color of a pixel in a color mask
func (m *LabelMask) ColorAt(x, y int) palette.RGB {
	v := m.Mat.GetVecbAt(y, x)
	return palette.RGB{v[2], v[1], v[0]}
}

// ScalarAt returns the label of a pixel in a scalar mask
func (m *LabelMask) ScalarAt(x, y int) int {
	if m.Mat.Type() == gocv.MatTypeCV16UC1 {
		return int(uint16(m.Mat.GetShortAt(y, x)))
	}
	return int(m.Mat.GetUCharAt(y, x))
}

// scalarValues returns every distinct label in a scalar mask, including background
func (m *LabelMask) scalarValues() ([]int, error) {
	values := []int{}
	if m.Mat.Type() == gocv.MatTypeCV16UC1 {
		px, err := m.Mat.DataPtrUint16()
		if err != nil {
			return nil, err
		}
		seen := make([]bool, 65536)
		for _, v := range px {
			if !seen[v] {
				seen[v] = true
				values = append(values, int(v))
			}
		}
		return values, nil
	}
	px, err := m.Mat.DataPtrUint8()
	if err != nil {
		return nil, err
	}
	var seen [256]bool
	for _, v := range px {
		seen[v] = true
	}
	for v, ok := range seen {
		if ok {
			values = append(values, v)
		}
	}
	return values, nil
}
