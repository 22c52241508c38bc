// Package facematch provides bounding box helpers shared by the stream pipeline,
// the verifiers and the embedding client.
package facematch

import (
	"image"
	"sort"
)

// ToRect converts a provider bbox [x1, y1, x2, y2] in pixels to an image.Rectangle.
// Returns false for malformed or degenerate boxes.
func ToRect(bbox []float64) (image.Rectangle, bool) {
	if len(bbox) != 4 {
		return image.Rectangle{}, false
	}

	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3]))
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

// ClampRect restricts r to bounds. The result is empty when they do not overlap.
func ClampRect(r, bounds image.Rectangle) image.Rectangle {
	return r.Canon().Intersect(bounds)
}

// SortLeftToRight orders boxes by their left edge, then top edge.
// The sort is stable so boxes with identical corners keep detector order.
// Registry tie-breaks follow presentation order, so callers that need
// deterministic identity assignment sort before classifying.
func SortLeftToRight(boxes []image.Rectangle) {
	SortByBox(boxes, func(r image.Rectangle) image.Rectangle { return r })
}

// SortByBox is SortLeftToRight for any item carrying a box.
func SortByBox[T any](items []T, box func(T) image.Rectangle) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := box(items[i]), box(items[j])
		if a.Min.X != b.Min.X {
			return a.Min.X < b.Min.X
		}
		return a.Min.Y < b.Min.Y
	})
}

// LabelOrigin returns the baseline point for a label drawn above box.
// Labels fall back to inside the box when there is no room above it.
func LabelOrigin(box, bounds image.Rectangle, textHeight int) image.Point {
	y := box.Min.Y - 10
	if y-textHeight < bounds.Min.Y {
		y = box.Min.Y + textHeight
	}
	return image.Pt(box.Min.X, y)
}
