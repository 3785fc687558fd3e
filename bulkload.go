package hprtree

// NodeCapacity is the maximum number of children of an internal node, and
// the maximum number of items in a leaf block.
const NodeCapacity = 16

// layerStarts calculates, for each layer of a tree over numItems items, the index into
// the flat node array where that layer begins. The leaf layer comes first, the root last.
// The final element is the total number of nodes.
// Datasets smaller than NodeCapacity get no layers at all.
func layerStarts(numItems int) []int {
	if numItems < NodeCapacity {
		return nil
	}
	starts := make([]int, 1, 8)
	n := numItems
	numNodes := 0
	for {
		n = (n + NodeCapacity - 1) / NodeCapacity
		numNodes += n
		starts = append(starts, numNodes)
		if n <= 1 {
			break
		}
	}
	return starts
}

// bulkLoad packs Hilbert-sorted items into a new tree.
// The tree takes ownership of items.
func bulkLoad[T any](items []indexItem[T], extent BBox) *Tree[T] {
	t := &Tree[T]{
		items:      items,
		extent:     extent,
		layerStart: layerStarts(len(items)),
	}
	if len(t.layerStart) == 0 {
		return t
	}

	t.nodeBounds = make([]BBox, t.layerStart[len(t.layerStart)-1])
	for i := range t.nodeBounds {
		t.nodeBounds[i] = InvertedBox()
	}

	// leaf blocks, each covering up to NodeCapacity consecutive items
	pos := 0
	for node := 0; node < t.layerStart[1]; node++ {
		nodeBox := &t.nodeBounds[node]
		for j := 0; j < NodeCapacity && pos < len(items); j++ {
			nodeBox.ExpandPoint(items[pos].geom)
			pos++
		}
	}

	// generate nodes at each higher layer, bottom-up
	for layer := 1; layer < len(t.layerStart)-1; layer++ {
		childStart := t.layerStart[layer-1]
		childEnd := t.layerStart[layer]
		pos = childStart
		for node := t.layerStart[layer]; node < t.layerStart[layer+1]; node++ {
			nodeBox := &t.nodeBounds[node]
			for j := 0; j < NodeCapacity && pos < childEnd; j++ {
				nodeBox.Expand(&t.nodeBounds[pos])
				pos++
			}
		}
	}
	return t
}
