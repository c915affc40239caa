package widget

import "math"

// Point is a pointer or widget position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the visible area.
type Viewport struct {
	Width  float64 `json:"width" binding:"gt=0"`
	Height float64 `json:"height" binding:"gt=0"`
}

// Side is the edge a widget docks to.
type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Zones holds the drag thresholds.
type Zones struct {
	DismissRadius float64
	DismissOffset float64 // distance of the dismiss target above the bottom edge
	DockThreshold float64
	Margin        float64
}

// DefaultZones matches the widget's stock layout.
var DefaultZones = Zones{
	DismissRadius: 60,
	DismissOffset: 80,
	DockThreshold: 48,
	Margin:        16,
}

// DismissTarget is the centre of the bottom dismiss zone.
func (z Zones) DismissTarget(v Viewport) Point {
	return Point{X: v.Width / 2, Y: v.Height - z.DismissOffset}
}

// InDismissZone reports whether p is released over the dismiss target.
func (z Zones) InDismissZone(p Point, v Viewport) bool {
	t := z.DismissTarget(v)
	return math.Hypot(p.X-t.X, p.Y-t.Y) <= z.DismissRadius
}

// DockSide returns the edge p snaps to, or SideNone when it is not close
// enough to either.
func (z Zones) DockSide(p Point, v Viewport) Side {
	left := p.X
	right := v.Width - p.X
	switch {
	case left <= z.DockThreshold && left <= right:
		return SideLeft
	case right <= z.DockThreshold:
		return SideRight
	default:
		return SideNone
	}
}

// Clamp keeps p inside the viewport minus the margin.
func (z Zones) Clamp(p Point, v Viewport) Point {
	return Point{
		X: clamp(p.X, z.Margin, v.Width-z.Margin),
		Y: clamp(p.Y, z.Margin, v.Height-z.Margin),
	}
}

// Release resolves where a dragged widget ends up. dismissed is true when
// the drop landed in the dismiss zone; otherwise pos is the clamped,
// possibly docked, resting position.
func (z Zones) Release(p Point, v Viewport) (pos Point, side Side, dismissed bool) {
	if z.InDismissZone(p, v) {
		return p, SideNone, true
	}
	pos = z.Clamp(p, v)
	side = z.DockSide(p, v)
	switch side {
	case SideLeft:
		pos.X = z.Margin
	case SideRight:
		pos.X = v.Width - z.Margin
	}
	return pos, side, false
}

func clamp(x, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(x, hi))
}
