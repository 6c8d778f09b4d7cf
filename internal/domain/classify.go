package domain

import (
	"fmt"
	"math"
	"slices"
)

// LandUseClass names a semantic group of CORINE land-use codes.
type LandUseClass string

const (
	ClassUrban       LandUseClass = "urban"
	ClassAgriculture LandUseClass = "agriculture"
	ClassForest      LandUseClass = "forest"
	ClassWetlands    LandUseClass = "wetlands"
	ClassWater       LandUseClass = "water"
	ClassAll         LandUseClass = "all"
	ClassAllButWater LandUseClass = "all_but_water"
)

// CodeSet is a set of integer land-use codes.
type CodeSet map[int]struct{}

// CodeRange returns the codes from lo through hi inclusive. The set is empty
// when hi < lo.
func CodeRange(lo, hi int) CodeSet {
	if hi < lo {
		return make(CodeSet)
	}
	s := make(CodeSet, hi-lo+1)
	for c := lo; c <= hi; c++ {
		s[c] = struct{}{}
	}
	return s
}

// Union returns the codes present in any of the sets.
func Union(sets ...CodeSet) CodeSet {
	out := make(CodeSet)
	for _, s := range sets {
		for c := range s {
			out[c] = struct{}{}
		}
	}
	return out
}

// Contains reports whether v is a whole number in the set.
func (s CodeSet) Contains(v float64) bool {
	if math.IsNaN(v) || v != math.Trunc(v) {
		return false
	}
	_, ok := s[int(v)]
	return ok
}

// Overlaps reports whether the sets share a code.
func (s CodeSet) Overlaps(o CodeSet) bool {
	for c := range s {
		if _, ok := o[c]; ok {
			return true
		}
	}
	return false
}

// Codes lists the set in ascending order.
func (s CodeSet) Codes() []int {
	out := make([]int, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// ClassIndexTable maps land-use classes to code sets. It is immutable once
// built; lookups return copies.
type ClassIndexTable struct {
	classes    map[LandUseClass]CodeSet
	aggregates map[LandUseClass]bool
	order      []LandUseClass
}

// DefaultClassIndex returns the CORINE level-3 grouping.
func DefaultClassIndex() *ClassIndexTable {
	t := &ClassIndexTable{
		classes: map[LandUseClass]CodeSet{
			ClassUrban:       CodeRange(1, 11),
			ClassAgriculture: CodeRange(12, 22),
			ClassForest:      CodeRange(23, 34),
			ClassWetlands:    CodeRange(35, 39),
			ClassWater:       CodeRange(40, 45),
			ClassAll:         CodeRange(1, 45),
			ClassAllButWater: CodeRange(1, 39),
		},
		aggregates: map[LandUseClass]bool{ClassAll: true, ClassAllButWater: true},
		order: []LandUseClass{
			ClassUrban, ClassAgriculture, ClassForest, ClassWetlands, ClassWater,
			ClassAll, ClassAllButWater,
		},
	}
	return t
}

// Codes returns a copy of the code set for class.
func (t *ClassIndexTable) Codes(class LandUseClass) (CodeSet, error) {
	s, ok := t.classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return Union(s), nil
}

// IsAggregate reports whether class is a union of other classes.
func (t *ClassIndexTable) IsAggregate(class LandUseClass) bool {
	return t.aggregates[class]
}

// Classes lists every class, base classes first.
func (t *ClassIndexTable) Classes() []LandUseClass {
	return slices.Clone(t.order)
}

// BaseClasses lists the pairwise disjoint classes.
func (t *ClassIndexTable) BaseClasses() []LandUseClass {
	out := make([]LandUseClass, 0, len(t.order))
	for _, c := range t.order {
		if !t.aggregates[c] {
			out = append(out, c)
		}
	}
	return out
}

// UnionOf merges base classes into one code set. Aggregate classes are
// rejected so that the result stays usable by Classify.
func (t *ClassIndexTable) UnionOf(classes ...LandUseClass) (CodeSet, error) {
	sets := make([]CodeSet, 0, len(classes))
	for _, c := range classes {
		if t.aggregates[c] {
			return nil, fmt.Errorf("%w: %q", ErrAggregateClass, c)
		}
		s, err := t.Codes(c)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return Union(sets...), nil
}

// Urban and rural cell values produced by Classify.
const (
	UrbanValue = 1.0
	RuralValue = 0.0
)

// Classify maps every cell to 1 when its code is urban, 0 when rural and
// NaN otherwise. The code sets must be disjoint.
func Classify(r *Raster, urban, rural CodeSet) (*Raster, error) {
	if urban.Overlaps(rural) {
		return nil, ErrOverlappingCodeSets
	}
	out := r.Clone()
	for _, s := range out.Slices {
		for i, v := range s.Data {
			switch {
			case urban.Contains(v):
				s.Data[i] = UrbanValue
			case rural.Contains(v):
				s.Data[i] = RuralValue
			default:
				s.Data[i] = math.NaN()
			}
		}
	}
	out.NoData = nil
	return out, nil
}

// ClassifyClasses resolves class names through the table before calling
// Classify.
func (t *ClassIndexTable) ClassifyClasses(r *Raster, urban, rural []LandUseClass) (*Raster, error) {
	u, err := t.UnionOf(urban...)
	if err != nil {
		return nil, fmt.Errorf("urban classes: %w", err)
	}
	ru, err := t.UnionOf(rural...)
	if err != nil {
		return nil, fmt.Errorf("rural classes: %w", err)
	}
	return Classify(r, u, ru)
}

// CountCells counts cells whose value is in codes. With a nil at every slice
// is counted; otherwise only the slice tagged with *at.
func CountCells(r *Raster, codes CodeSet, at *TimeValue) int {
	n := 0
	for _, s := range r.Slices {
		if at != nil && !s.Time.Equal(*at) {
			continue
		}
		for _, v := range s.Data {
			if codes.Contains(v) {
				n++
			}
		}
	}
	return n
}
