package api

import (
	"github.com/starford/dagaz/internal/geometry"
)

// CreateDeckRequest is the request body for creating a deck.
type CreateDeckRequest struct {
	Path   string `json:"path"`
	Slides int    `json:"slides"`
}

// AddShapeRequest describes a text box to place on a slide. Position and
// size accept inches, percentages, named anchors, or grid cells.
type AddShapeRequest struct {
	SlideIndex int               `json:"slide_index"`
	Position   geometry.Position `json:"position"`
	Size       geometry.Size     `json:"size"`
	Text       string            `json:"text"`
	Fill       string            `json:"fill,omitempty"`
}

// OpacityRequest sets fill and line opacity on one shape.
type OpacityRequest struct {
	SlideIndex int     `json:"slide_index"`
	ShapeIndex int     `json:"shape_index"`
	Generation uint64  `json:"generation,omitempty"`
	Opacity    float64 `json:"opacity"`
}

// ReorderRequest moves a shape in the paint order.
type ReorderRequest struct {
	SlideIndex int    `json:"slide_index"`
	ShapeIndex int    `json:"shape_index"`
	Generation uint64 `json:"generation,omitempty"`
	Op         string `json:"op"`
}

// ReplaceTextRequest substitutes text. SlideIndex -1 targets every slide
// and requires an approval token.
type ReplaceTextRequest struct {
	SlideIndex int    `json:"slide_index"`
	Old        string `json:"old"`
	New        string `json:"new"`
}

// IssueApprovalRequest mints a scoped single-use approval token.
type IssueApprovalRequest struct {
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

// IssueApprovalResponse carries the serialized token.
type IssueApprovalResponse struct {
	Token string `json:"token"`
}
