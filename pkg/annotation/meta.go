package annotation

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cyclopcam/masksync/pkg/geom"
)

// MetaRecord summarizes one instance of a finalized frame.
// A list of these forms the identity cache for the following frame.
type MetaRecord struct {
	InstanceID string    `json:"instanceId"`
	Name       string    `json:"name"`
	BBox       geom.BBox `json:"bbox"`
	ClassName  string    `json:"className,omitempty"`
}

// MetaFile maps a frame key to the cache that frame is reconciled against
type MetaFile map[string][]MetaRecord

type looseMetaRecord struct {
	InstanceID any        `json:"instanceId"`
	Name       any        `json:"name"`
	BBox       *geom.BBox `json:"bbox"`
	ClassName  any        `json:"className"`
}

// BuildCache flattens every instance of the previous frame into one list, in
// class order and then instance order. A nil annotation yields an empty cache.
func BuildCache(prev *FrameAnnotation) []MetaRecord {
	cache := []MetaRecord{}
	if prev == nil {
		return cache
	}
	for _, c := range prev.Classes {
		for _, inst := range c.Instances {
			if inst.Polygon.IsDegenerate() {
				continue
			}
			cache = append(cache, MetaRecord{
				InstanceID: inst.ID,
				Name:       inst.Name,
				BBox:       inst.Polygon.Bounds(),
				ClassName:  c.ClassID,
			})
		}
	}
	return cache
}

// BuildMetaFile produces the cache for every frame that follows an annotated
// frame. The entry for frame N comes from the annotation of frame N-1.
func BuildMetaFile(frames map[int]*FrameAnnotation) MetaFile {
	meta := MetaFile{}
	indices := []int{}
	for idx := range frames {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	for _, idx := range indices {
		meta[FrameKey(idx+1)] = BuildCache(frames[idx])
	}
	return meta
}

// ParseMetaFile is permissive: records without a usable bbox are skipped, as
// are keys whose value is not a list.
func ParseMetaFile(data []byte) (MetaFile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}
	meta := MetaFile{}
	for key, rlist := range raw {
		var list []json.RawMessage
		if json.Unmarshal(rlist, &list) != nil {
			continue
		}
		records := []MetaRecord{}
		for _, r := range list {
			var lr looseMetaRecord
			if json.Unmarshal(r, &lr) != nil || lr.BBox == nil || !lr.BBox.IsValid() {
				continue
			}
			records = append(records, MetaRecord{
				InstanceID: asString(lr.InstanceID),
				Name:       asString(lr.Name),
				BBox:       *lr.BBox,
				ClassName:  asString(lr.ClassName),
			})
		}
		meta[key] = records
	}
	return meta, nil
}

func EncodeMetaFile(meta MetaFile) ([]byte, error) {
	return json.MarshalIndent(meta, "", "  ")
}
