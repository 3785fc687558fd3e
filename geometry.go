package hprtree

import (
	"fmt"
	"math"
)

// Coords is implemented by anything that can report its own position.
// Items stored through a Builder must implement it; a plain Point does.
type Coords interface {
	X() float32
	Y() float32
}

// Point is a single-precision 2D coordinate, intended for lon/lat with x=lon and y=lat.
type Point [2]float32

// X returns the x (longitude) component.
func (p Point) X() float32 { return p[0] }

// Y returns the y (latitude) component.
func (p Point) Y() float32 { return p[1] }

// PointOf copies the coordinates of c into a Point.
func PointOf(c Coords) Point {
	return Point{c.X(), c.Y()}
}

// BBox is an axis-aligned bounding box.
// It is used for queries, and for the node bounds inside the tree.
type BBox struct {
	MinX float32
	MinY float32
	MaxX float32
	MaxY float32
}

// InvertedBox returns the empty box.
// Expanding an inverted box by some geometry yields exactly that geometry.
func InvertedBox() BBox {
	return BBox{
		MinX: math.MaxFloat32,
		MinY: math.MaxFloat32,
		MaxX: -math.MaxFloat32,
		MaxY: -math.MaxFloat32,
	}
}

func (b *BBox) Width() float32 {
	return b.MaxX - b.MinX
}

func (b *BBox) Height() float32 {
	return b.MaxY - b.MinY
}

// Area returns Width * Height, or zero for an empty box.
func (b *BBox) Area() float32 {
	if b.IsEmpty() {
		return 0
	}
	return b.Width() * b.Height()
}

// IsEmpty is true if the box contains no points at all
func (b *BBox) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Expand grows b so that it covers c.
func (b *BBox) Expand(c *BBox) {
	b.MinX = min(b.MinX, c.MinX)
	b.MinY = min(b.MinY, c.MinY)
	b.MaxX = max(b.MaxX, c.MaxX)
	b.MaxY = max(b.MaxY, c.MaxY)
}

// ExpandPoint grows b so that it covers p.
func (b *BBox) ExpandPoint(p Point) {
	b.MinX = min(b.MinX, p[0])
	b.MinY = min(b.MinY, p[1])
	b.MaxX = max(b.MaxX, p[0])
	b.MaxY = max(b.MaxY, p[1])
}

// Contains reports whether p lies inside b. All four edges are inclusive.
func (b *BBox) Contains(p Point) bool {
	return p[0] >= b.MinX && p[0] <= b.MaxX && p[1] >= b.MinY && p[1] <= b.MaxY
}

// Intersects reports whether b and o share at least one point.
// Boxes that only touch along an edge or a corner intersect.
func (b *BBox) Intersects(o *BBox) bool {
	return o.MaxX >= b.MinX && o.MinX <= b.MaxX && o.MaxY >= b.MinY && o.MinY <= b.MaxY
}

func (b BBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
