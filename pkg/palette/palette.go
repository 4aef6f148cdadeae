// Package palette maps class identifiers to the pixel encodings used in label masks.
//
// A 3-channel mask uses a fixed table of colors, one per class. A single-channel
// mask treats every distinct non-zero value as its own object, and class ids are
// handed out in ascending order of value, so they depend on the mask's content.
package palette

import (
	"encoding/json"
	"fmt"
	"image/color"
	"slices"
	"strconv"
)

type Mode int

const (
	ModeColor  Mode = iota // 3-channel, fixed class to color table
	ModeScalar             // 1-channel, one object per distinct value
)

func (m Mode) String() string {
	switch m {
	case ModeColor:
		return "color"
	case ModeScalar:
		return "scalar"
	}
	return "unknown"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "color", "rgb":
		return ModeColor, nil
	case "scalar", "gray", "grayscale":
		return ModeScalar, nil
	}
	return ModeColor, fmt.Errorf("Unknown mask mode '%v'", s)
}

// ModeForChannels picks the codec mode from a mask's channel count.
// A 4th (alpha) channel is ignored.
func ModeForChannels(channels int) (Mode, error) {
	switch channels {
	case 1:
		return ModeScalar, nil
	case 3, 4:
		return ModeColor, nil
	}
	return ModeColor, fmt.Errorf("Unsupported mask channel count %v", channels)
}

// RGB is a color triplet. On the wire it is [r, g, b].
type RGB [3]uint8

func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
}

func (c RGB) String() string {
	return fmt.Sprintf("(%v,%v,%v)", c[0], c[1], c[2])
}

func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{int(c[0]), int(c[1]), int(c[2])})
}

func (c *RGB) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 3 {
		return fmt.Errorf("color must have 3 elements, not %v", len(v))
	}
	for i := range 3 {
		if v[i] < 0 || v[i] > 255 {
			return fmt.Errorf("color component %v out of range", v[i])
		}
		c[i] = uint8(v[i])
	}
	return nil
}

var (
	Black = RGB{0, 0, 0}
	White = RGB{255, 255, 255}
)

// Placeholder is what an unmapped class is painted with
var Placeholder = White

// ScalarPlaceholder is the single-channel equivalent of Placeholder
const ScalarPlaceholder = 255

type ColorEntry struct {
	ClassID string `json:"classId"`
	Color   RGB    `json:"color"`
}

// DefaultColorTable is the stock set of class colors
var DefaultColorTable = []ColorEntry{
	{"1", RGB{255, 0, 0}},   // red
	{"2", RGB{0, 0, 255}},   // blue
	{"3", RGB{0, 255, 0}},   // green
	{"4", RGB{0, 255, 255}}, // cyan
	{"5", RGB{255, 0, 255}}, // magenta
	{"6", RGB{255, 255, 0}}, // yellow
	{"7", RGB{128, 0, 128}}, // purple
	{"8", RGB{0, 165, 255}}, // named orange, but legacy masks store BGR (255,165,0)
}

// Codec is the color table. It is immutable after construction and safe for concurrent use.
type Codec struct {
	table   []ColorEntry
	byColor map[RGB]string
	byClass map[string]RGB
}

func NewCodec(table []ColorEntry) (*Codec, error) {
	c := &Codec{
		table:   slices.Clone(table),
		byColor: map[RGB]string{},
		byClass: map[string]RGB{},
	}
	for _, e := range table {
		if e.Color == Black {
			return nil, fmt.Errorf("Class %v may not use black, which is reserved for background", e.ClassID)
		}
		if other, ok := c.byColor[e.Color]; ok {
			return nil, fmt.Errorf("Classes %v and %v share the color %v", other, e.ClassID, e.Color)
		}
		if _, ok := c.byClass[e.ClassID]; ok {
			return nil, fmt.Errorf("Class %v appears twice in the color table", e.ClassID)
		}
		c.byColor[e.Color] = e.ClassID
		c.byClass[e.ClassID] = e.Color
	}
	return c, nil
}

func DefaultCodec() *Codec {
	c, err := NewCodec(DefaultColorTable)
	if err != nil {
		panic(err)
	}
	return c
}

// Table returns the color table in decode order
func (c *Codec) Table() []ColorEntry {
	return c.table
}

// EncodeColor returns the class color, or Placeholder if the class is not in the table
func (c *Codec) EncodeColor(classID string) RGB {
	if v, ok := c.byClass[classID]; ok {
		return v
	}
	return Placeholder
}

// DecodeColor returns false for background and for any color outside the table
func (c *Codec) DecodeColor(v RGB) (string, bool) {
	id, ok := c.byColor[v]
	return id, ok
}

// EncodeScalar maps a class id "k" to the label value k. Anything that is not
// a valid 8-bit label encodes to ScalarPlaceholder.
func EncodeScalar(classID string) uint8 {
	v, err := strconv.Atoi(classID)
	if err != nil || v < 1 || v > 255 {
		return ScalarPlaceholder
	}
	return uint8(v)
}

// ScalarLabels assigns class ids "1".."k" over the sorted distinct non-zero
// values found in one single-channel mask.
type ScalarLabels struct {
	values  []int
	byValue map[int]string
}

func NewScalarLabels(values []int) *ScalarLabels {
	distinct := []int{}
	for _, v := range values {
		if v > 0 {
			distinct = append(distinct, v)
		}
	}
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	s := &ScalarLabels{
		values:  distinct,
		byValue: make(map[int]string, len(distinct)),
	}
	for i, v := range distinct {
		s.byValue[v] = strconv.Itoa(i + 1)
	}
	return s
}

// Values returns the distinct labels in decode order (ascending)
func (s *ScalarLabels) Values() []int {
	return s.values
}

// Decode returns false for background and for values that were not present in the mask
func (s *ScalarLabels) Decode(v int) (string, bool) {
	id, ok := s.byValue[v]
	return id, ok
}
