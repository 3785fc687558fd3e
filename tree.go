package hprtree

import (
	"fmt"
	"math"
	"unsafe"
)

// Tree is a static, packed Hilbert R-Tree over points.
// It is created by Builder.Build or PairBuilder.Build, and is never modified afterwards,
// so any number of goroutines may query it concurrently.
type Tree[T any] struct {
	items  []indexItem[T]
	extent BBox

	// layerStart[i] is the index into nodeBounds where layer i begins.
	// Layer 0 holds the leaf blocks, the last layer is the root.
	// The final element is len(nodeBounds). Empty if the tree is too small to need layers.
	layerStart []int
	nodeBounds []BBox
}

// Len returns the number of items in the tree
func (t *Tree[T]) Len() int {
	return len(t.items)
}

// IsEmpty returns true if the tree holds no items
func (t *Tree[T]) IsEmpty() bool {
	return len(t.items) == 0
}

// Extent returns the bounding box around all of the items
func (t *Tree[T]) Extent() BBox {
	return t.extent
}

// NumLayers returns the number of node layers above the items.
// Trees with fewer than NodeCapacity items have none, and are searched linearly.
func (t *Tree[T]) NumLayers() int {
	if len(t.layerStart) == 0 {
		return 0
	}
	return len(t.layerStart) - 1
}

// AvgEntries returns the average number of items per unit of area.
// For evenly distributed data, this predicts how many items a query will find.
func (t *Tree[T]) AvgEntries() float32 {
	area := t.extent.Area()
	if area == 0 {
		return float32(len(t.items))
	}
	return float32(len(t.items)) / area
}

// Query returns all items whose point lies inside b, edges included.
// The order of the results is not defined.
func (t *Tree[T]) Query(b *BBox) []T {
	if !t.extent.Intersects(b) {
		return []T{}
	}
	results := make([]T, 0, t.estimateResults(b))
	return t.QueryFast(b, results)
}

// QueryFast accepts a 'results' as input. If you are performing millions of queries,
// then reusing a 'results' slice will reduce the number of allocations.
func (t *Tree[T]) QueryFast(b *BBox, results []T) []T {
	results = results[:0]
	if !t.extent.Intersects(b) {
		return results
	}
	if len(t.layerStart) == 0 {
		return t.queryItems(0, b, results)
	}

	queue := make([]int, 0, 32)
	queue = append(queue, 0)                   // node offset within its layer
	queue = append(queue, len(t.layerStart)-2) // layer

	for len(queue) != 0 {
		offset := queue[len(queue)-2]
		layer := queue[len(queue)-1]
		queue = queue[:len(queue)-2]

		if !b.Intersects(&t.nodeBounds[t.layerStart[layer]+offset]) {
			continue
		}

		childOffset := offset * NodeCapacity
		if layer == 0 {
			results = t.queryItems(childOffset, b, results)
			continue
		}

		// queue up the children, skipping past the end of the last partial block
		childLayer := layer - 1
		childLayerSize := t.layerStart[layer] - t.layerStart[childLayer]
		end := min(childOffset+NodeCapacity, childLayerSize)
		for child := childOffset; child < end; child++ {
			queue = append(queue, child)
			queue = append(queue, childLayer)
		}
	}
	return results
}

// queryItems scans the leaf block starting at item index start.
// A tree without layers is a single block holding everything.
func (t *Tree[T]) queryItems(start int, b *BBox, results []T) []T {
	end := len(t.items)
	if len(t.layerStart) != 0 {
		end = min(start+NodeCapacity, end)
	}
	for i := start; i < end; i++ {
		// the original coordinates, never the quantized ones
		if b.Contains(t.items[i].geom) {
			results = append(results, t.items[i].item)
		}
	}
	return results
}

func (t *Tree[T]) estimateResults(b *BBox) int {
	guess := float64(t.AvgEntries()) * float64(b.Area()) * 1.5
	if !(guess > 0) {
		return 0
	}
	if guess > float64(len(t.items)) {
		return len(t.items)
	}
	return int(guess)
}

// SizeInBytes returns how many bytes are taken up by the tree's data
func (t *Tree[T]) SizeInBytes() int {
	var item indexItem[T]
	var box BBox
	var layer int
	return len(t.items)*int(unsafe.Sizeof(item)) +
		len(t.layerStart)*int(unsafe.Sizeof(layer)) +
		len(t.nodeBounds)*int(unsafe.Sizeof(box)) +
		int(unsafe.Sizeof(*t))
}

// ProjectedSizeInBytes approximates SizeInBytes for a tree of numItems items of type T,
// without building it. The node count is a linear fit to trees of between
// 16200 and 1036800 items, so treat the result as an estimate only.
func ProjectedSizeInBytes[T any](numItems int) int {
	var tree Tree[T]
	var item indexItem[T]
	var box BBox
	var layer int
	size := int(unsafe.Sizeof(tree))
	if numItems <= 0 {
		return size
	}
	layers := int(math.Log(float64(numItems)) / math.Log(NodeCapacity))
	nodes := int(float64(numItems)*0.0667 + 2.2143)
	return size +
		numItems*int(unsafe.Sizeof(item)) +
		layers*int(unsafe.Sizeof(layer)) +
		nodes*int(unsafe.Sizeof(box))
}

// String returns a summary description of the tree
func (t *Tree[T]) String() string {
	return fmt.Sprintf("Tree{Extent:%s,Len:%d,Layers:%d}", t.extent, len(t.items), t.NumLayers())
}
