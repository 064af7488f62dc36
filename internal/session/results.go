package session

// Result types returned by session operations. Every structural mutation
// carries the new generation and a staleness warning; callers must
// re-query indices once the generation moves.

// ShapeInfo summarizes one shape. Geometry is in inches; HasGeometry is
// false for placeholders inheriting position from their layout.
type ShapeInfo struct {
	Index       int     `json:"index"`
	Kind        string  `json:"kind"`
	Name        string  `json:"name"`
	Left        float64 `json:"left"`
	Top         float64 `json:"top"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	HasGeometry bool    `json:"has_geometry"`
}

// SlideInfo summarizes one slide.
type SlideInfo struct {
	Index  int         `json:"index"`
	Layout string      `json:"layout"`
	Shapes []ShapeInfo `json:"shapes"`
}

// InspectResult is the full document summary.
type InspectResult struct {
	Path        string      `json:"path"`
	SlideWidth  float64     `json:"slide_width"`
	SlideHeight float64     `json:"slide_height"`
	Version     string      `json:"version"`
	Generation  uint64      `json:"generation"`
	Slides      []SlideInfo `json:"slides"`
}

// AddShapeResult reports a shape addition with its resolved geometry.
type AddShapeResult struct {
	SlideIndex int      `json:"slide_index"`
	ShapeIndex int      `json:"shape_index"`
	Left       float64  `json:"left"`
	Top        float64  `json:"top"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Generation uint64   `json:"generation"`
	Warnings   []string `json:"warnings"`
}

// OpacityResult reports an opacity injection attempt per style target.
type OpacityResult struct {
	SlideIndex  int      `json:"slide_index"`
	ShapeIndex  int      `json:"shape_index"`
	FillApplied bool     `json:"fill_applied"`
	LineApplied bool     `json:"line_applied"`
	Generation  uint64   `json:"generation"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ReorderResult reports a z-order move.
type ReorderResult struct {
	SlideIndex int      `json:"slide_index"`
	OldIndex   int      `json:"old_index"`
	NewIndex   int      `json:"new_index"`
	Generation uint64   `json:"generation"`
	Warnings   []string `json:"warnings"`
}

// ReplaceTextResult reports a text substitution.
type ReplaceTextResult struct {
	SlidesTouched int    `json:"slides_touched"`
	RunsChanged   int    `json:"runs_changed"`
	Generation    uint64 `json:"generation"`
}

// RemoveResult reports a slide or shape removal.
type RemoveResult struct {
	SlideIndex int      `json:"slide_index"`
	Removed    int      `json:"removed_index"`
	Generation uint64   `json:"generation"`
	Warnings   []string `json:"warnings"`
}
