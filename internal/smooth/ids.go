// Package smooth implements the per-block parameter ramping system that
// keeps zipper noise out of float, double, and filter-coefficient
// parameters as they change. Distinct ID newtypes per slot kind mean a
// FloatID can never be passed where a FilterID is expected -- the
// compiler catches the mistake instead of a runtime bug.
package smooth

// FloatID indexes a float32 smoothing slot.
type FloatID uint16

// DoubleID indexes a float64 smoothing slot.
type DoubleID uint16

// FilterID indexes a filter-coefficient smoothing slot.
type FilterID uint16
