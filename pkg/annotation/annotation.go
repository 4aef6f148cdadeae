// Package annotation holds the vector side of a frame: polygons grouped by class,
// each carrying an identity that persists across frames.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cyclopcam/masksync/pkg/geom"
)

// ErrMalformedAnnotation is returned when an annotation is not parseable JSON.
// Missing or mistyped fields are not an error; they fall back to defaults.
var ErrMalformedAnnotation = errors.New("Malformed annotation")

type Instance struct {
	ID      string       // Stable identity, carried from frame to frame
	Name    string       // Informational display name
	Polygon geom.Polygon // Implicitly closed
}

// RawClass is the vectorized content of one class in a mask. The polygons carry no identity yet.
type RawClass struct {
	ClassID  string
	Polygons []geom.Polygon
}

type ClassGroup struct {
	ClassID   string
	Instances []Instance
}

// FrameAnnotation is the polygon description of one frame, and the durable
// source of truth for the identities in that frame.
type FrameAnnotation struct {
	ImageName string
	Classes   []ClassGroup
}

func (f *FrameAnnotation) NumInstances() int {
	n := 0
	for _, c := range f.Classes {
		n += len(c.Instances)
	}
	return n
}

// Class returns the group with the given id, or nil
func (f *FrameAnnotation) Class(classID string) *ClassGroup {
	for i := range f.Classes {
		if f.Classes[i].ClassID == classID {
			return &f.Classes[i]
		}
	}
	return nil
}

// Pruned returns a copy without degenerate polygons or empty classes
func (f *FrameAnnotation) Pruned() *FrameAnnotation {
	r := &FrameAnnotation{ImageName: f.ImageName}
	for _, c := range f.Classes {
		keep := ClassGroup{ClassID: c.ClassID}
		for _, inst := range c.Instances {
			if !inst.Polygon.IsDegenerate() {
				keep.Instances = append(keep.Instances, inst)
			}
		}
		if len(keep.Instances) != 0 {
			r.Classes = append(r.Classes, keep)
		}
	}
	return r
}

type instanceJSON struct {
	InstanceID  string   `json:"instanceId"`
	Name        string   `json:"name"`
	Coordinates [][2]int `json:"coordinates"`
}

type classJSON struct {
	ClassName string         `json:"className"`
	Instances []instanceJSON `json:"instances"`
}

type frameJSON struct {
	ImageName string      `json:"imageName"`
	Classes   []classJSON `json:"classes"`
}

// Lenient mirrors of the wire types, so that one bad field doesn't sink the whole file
type looseInstance struct {
	InstanceID  any               `json:"instanceId"`
	Name        any               `json:"name"`
	Coordinates []json.RawMessage `json:"coordinates"`
}

type looseClass struct {
	ClassName any               `json:"className"`
	Instances []json.RawMessage `json:"instances"`
}

type looseFrame struct {
	ImageName any               `json:"imageName"`
	Classes   []json.RawMessage `json:"classes"`
}

// MarshalJSON omits degenerate polygons, and classes left with no instances
func (f *FrameAnnotation) MarshalJSON() ([]byte, error) {
	p := f.Pruned()
	out := frameJSON{
		ImageName: p.ImageName,
		Classes:   []classJSON{},
	}
	for _, c := range p.Classes {
		cj := classJSON{ClassName: c.ClassID}
		for _, inst := range c.Instances {
			ij := instanceJSON{
				InstanceID:  inst.ID,
				Name:        inst.Name,
				Coordinates: make([][2]int, len(inst.Polygon)),
			}
			for i, pt := range inst.Polygon {
				ij.Coordinates[i] = [2]int{pt.X, pt.Y}
			}
			cj.Instances = append(cj.Instances, ij)
		}
		out.Classes = append(out.Classes, cj)
	}
	return json.Marshal(&out)
}

// UnmarshalJSON is permissive. Fields that are missing or of the wrong type take
// their zero value, fractional coordinates are rounded, malformed points are
// skipped, and polygons with fewer than 3 points are dropped.
func (f *FrameAnnotation) UnmarshalJSON(data []byte) error {
	var raw looseFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}
	*f = FrameAnnotation{ImageName: asString(raw.ImageName)}
	for _, rc := range raw.Classes {
		var lc looseClass
		if json.Unmarshal(rc, &lc) != nil {
			continue
		}
		group := ClassGroup{ClassID: asString(lc.ClassName)}
		for _, ri := range lc.Instances {
			var li looseInstance
			if json.Unmarshal(ri, &li) != nil {
				continue
			}
			inst := Instance{
				ID:      asString(li.InstanceID),
				Name:    asString(li.Name),
				Polygon: parsePoints(li.Coordinates),
			}
			if inst.Polygon.IsDegenerate() {
				continue
			}
			group.Instances = append(group.Instances, inst)
		}
		f.Classes = append(f.Classes, group)
	}
	return nil
}

func parsePoints(raw []json.RawMessage) geom.Polygon {
	poly := make(geom.Polygon, 0, len(raw))
	for _, r := range raw {
		var xy []float64
		if json.Unmarshal(r, &xy) != nil || len(xy) < 2 {
			continue
		}
		poly = append(poly, geom.Point{X: int(math.Round(xy[0])), Y: int(math.Round(xy[1]))})
	}
	return poly
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// Class names in hand-edited files are sometimes bare numbers
		if x == math.Trunc(x) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	}
	return ""
}

// Parse decodes a polygon JSON document
func Parse(data []byte) (*FrameAnnotation, error) {
	f := &FrameAnnotation{}
	if err := json.Unmarshal(data, f); err != nil {
		if errors.Is(err, ErrMalformedAnnotation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}
	return f, nil
}

// Encode produces indented polygon JSON
func Encode(f *FrameAnnotation) ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}
