package overlay

import "image"

// Margins inset the overlay from the right and bottom edges of the
// available area
type Margins struct {
	Right  int
	Bottom int
}

// Anchor places a window of the given size at the bottom-right corner of
// area, inset by margins.
func Anchor(area image.Rectangle, size image.Point, m Margins) image.Rectangle {
	origin := image.Pt(area.Max.X-size.X-m.Right, area.Max.Y-size.Y-m.Bottom)
	return image.Rectangle{Min: origin, Max: origin.Add(size)}
}

// clampTo shifts r so that it lies inside bounds where possible. A window
// larger than bounds is pinned to the top-left corner.
func clampTo(r, bounds image.Rectangle) image.Rectangle {
	if bounds.Empty() {
		return r
	}

	d := image.Point{}
	if r.Max.X > bounds.Max.X {
		d.X = bounds.Max.X - r.Max.X
	}
	if r.Min.X+d.X < bounds.Min.X {
		d.X = bounds.Min.X - r.Min.X
	}
	if r.Max.Y > bounds.Max.Y {
		d.Y = bounds.Max.Y - r.Max.Y
	}
	if r.Min.Y+d.Y < bounds.Min.Y {
		d.Y = bounds.Min.Y - r.Min.Y
	}
	return r.Add(d)
}
