// Package reconcile assigns identities to freshly vectorized polygons, by
// matching their boxes against the boxes of the previous frame.
//
// Matching is greedy. Polygons are visited in vectorizer order, and each one
// claims the best remaining cache entry. This is not a globally optimal
// assignment, but objects move smoothly between consecutive frames, so the
// greedy choice is almost always the right one.
package reconcile

import (
	"fmt"
	"slices"

	"github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/geom"
)

type Params struct {
	IoUWeight         float32 `json:"iouWeight"`
	ProximityWeight   float32 `json:"proximityWeight"`
	Threshold         float32 `json:"threshold"`         // A match must score strictly above this
	MaxCenterDistance float32 `json:"maxCenterDistance"` // Proximity is zero at or beyond this normalized center distance
	Epsilon           float32 `json:"epsilon"`           // Guards the center distance normalization
	MintPrefix        string  `json:"mintPrefix"`        // New identities are MintPrefix + ordinal
	MintName          string  `json:"mintName"`          // Display name of minted instances. Empty means use the identity.
	CarryClass        bool    `json:"carryClass"`        // Move a matched instance into the class recorded in the cache
}

func DefaultParams() Params {
	return Params{
		IoUWeight:         0.7,
		ProximityWeight:   0.3,
		Threshold:         0.3,
		MaxCenterDistance: 2,
		Epsilon:           1e-6,
		MintPrefix:        "Object-",
		MintName:          "Object",
	}
}

// Score fuses box overlap and center proximity
func (p *Params) Score(a, b geom.BBox) float32 {
	return p.IoUWeight*a.IOU(b) + p.ProximityWeight*a.Proximity(b, p.MaxCenterDistance, p.Epsilon)
}

// Match describes the fate of one raw polygon
type Match struct {
	ClassID    string  // Class that the instance ended up in
	InstanceID string  // Assigned identity
	CacheIndex int     // Index of the claimed cache entry, or -1 if the identity was minted
	Score      float32 // Best score found, even if it was not good enough
}

func (m *Match) Carried() bool {
	return m.CacheIndex != -1
}

type Result struct {
	Classes []annotation.ClassGroup
	Matches []Match // One per raw polygon, in vectorizer order
	Carried int
	Minted  int
}

type Reconciler struct {
	Params  Params
	Log     logs.Log // May be nil
	Verbose bool
}

func NewReconciler(log logs.Log, params Params) *Reconciler {
	return &Reconciler{
		Params: params,
		Log:    log,
	}
}

// Reconcile assigns an identity to every raw polygon. An empty cache means
// every identity is minted.
func (r *Reconciler) Reconcile(raw []annotation.RawClass, cache []annotation.MetaRecord) *Result {
	p := &r.Params

	// A candidate whose box does not overlap ours has IoU = 0, so it can score at
	// most ProximityWeight. If that can never pass the threshold, then we only
	// need to consider overlapping boxes, and a spatial index finds those.
	useIndex := p.ProximityWeight <= p.Threshold && len(cache) != 0
	var fb *flatbush.Flatbush[int32]
	if useIndex {
		fb = flatbush.NewFlatbush[int32]()
		fb.Reserve(len(cache))
		for i := range cache {
			b := &cache[i].BBox
			fb.Add(int32(b.MinX), int32(b.MinY), int32(b.MaxX), int32(b.MaxY))
		}
		fb.Finish()
	}
	all := make([]int, len(cache))
	for i := range all {
		all[i] = i
	}

	// consumed[j] is true once cache[j] has been claimed in this frame
	consumed := make([]bool, len(cache))

	// carried[class][id] is true once id has been carried into class. Two cache
	// entries may share an id if they came from different classes.
	carried := map[string]map[string]bool{}
	targetClass := func(rawClass string, j int) string {
		if p.CarryClass && cache[j].ClassName != "" {
			return cache[j].ClassName
		}
		return rawClass
	}

	// Returns the best unconsumed cache entry whose identity is still free in
	// the class it would land in, preferring the earliest on ties
	bestMatch := func(rawClass string, box geom.BBox, candidates []int) (int, float32) {
		bestJ := -1
		bestScore := float32(0)
		for _, j := range candidates {
			if consumed[j] || carried[targetClass(rawClass, j)][cache[j].InstanceID] {
				continue
			}
			score := p.Score(box, cache[j].BBox)
			if score > bestScore {
				bestScore = score
				bestJ = j
			}
		}
		return bestJ, bestScore
	}

	result := &Result{}
	groupIndex := map[string]int{}
	groupFor := func(classID string) int {
		if gi, ok := groupIndex[classID]; ok {
			return gi
		}
		groupIndex[classID] = len(result.Classes)
		result.Classes = append(result.Classes, annotation.ClassGroup{ClassID: classID})
		return len(result.Classes) - 1
	}

	// Where each match was placed, so that minting can fill in the identity
	type slot struct {
		group    int
		instance int
	}
	slots := []slot{}

	candidates := []int{}
	for _, rc := range raw {
		for _, poly := range rc.Polygons {
			box := poly.Bounds()
			if useIndex {
				candidates = fb.SearchFast(int32(box.MinX), int32(box.MinY), int32(box.MaxX), int32(box.MaxY), candidates)
				slices.Sort(candidates)
			} else {
				candidates = all
			}
			j, score := bestMatch(rc.ClassID, box, candidates)
			m := Match{
				ClassID:    rc.ClassID,
				CacheIndex: -1,
				Score:      score,
			}
			inst := annotation.Instance{Polygon: poly}
			if j != -1 && score > p.Threshold {
				consumed[j] = true
				rec := &cache[j]
				m.CacheIndex = j
				m.InstanceID = rec.InstanceID
				inst.ID = rec.InstanceID
				inst.Name = rec.Name
				m.ClassID = targetClass(rc.ClassID, j)
				if carried[m.ClassID] == nil {
					carried[m.ClassID] = map[string]bool{}
				}
				carried[m.ClassID][rec.InstanceID] = true
				result.Carried++
				if r.Verbose && r.Log != nil {
					r.Log.Infof("Reconcile: class %v %v carries '%v' (score %.3f)", rc.ClassID, box, rec.InstanceID, score)
				}
			}
			gi := groupFor(m.ClassID)
			group := &result.Classes[gi]
			group.Instances = append(group.Instances, inst)
			slots = append(slots, slot{gi, len(group.Instances) - 1})
			result.Matches = append(result.Matches, m)
		}
	}

	// Mint identities for everything that was not carried forward. Minted
	// identities avoid anything already present in the class, and anything in the
	// cache, so that a new object never takes the name of an old one.
	reserved := map[string]bool{}
	for i := range cache {
		reserved[cache[i].InstanceID] = true
	}
	used := make([]map[string]bool, len(result.Classes))
	for gi := range result.Classes {
		used[gi] = map[string]bool{}
		for _, inst := range result.Classes[gi].Instances {
			if inst.ID != "" {
				used[gi][inst.ID] = true
			}
		}
	}
	for i := range result.Matches {
		m := &result.Matches[i]
		if m.Carried() {
			continue
		}
		s := slots[i]
		ordinal := s.instance + 1
		id := ""
		for {
			id = fmt.Sprintf("%v%v", p.MintPrefix, ordinal)
			if !used[s.group][id] && !reserved[id] {
				break
			}
			ordinal++
		}
		used[s.group][id] = true
		inst := &result.Classes[s.group].Instances[s.instance]
		inst.ID = id
		inst.Name = p.MintName
		if inst.Name == "" {
			inst.Name = id
		}
		m.InstanceID = id
		result.Minted++
		if r.Verbose && r.Log != nil {
			r.Log.Infof("Reconcile: class %v %v is new, minted '%v' (best score %.3f)", m.ClassID, inst.Polygon.Bounds(), id, m.Score)
		}
	}
	return result
}
