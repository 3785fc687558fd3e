package hprtree

// indexItem is a stored item, together with the copy of its geometry that
// was taken when it was inserted.
type indexItem[T any] struct {
	geom Point
	item T
}

// builder is the engine behind Builder and PairBuilder.
// The two only differ in where the geometry of an item comes from.
type builder[T any] struct {
	items    []indexItem[T]
	extent   BBox
	sorted   bool
	consumed bool
}

func newBuilder[T any](capacity int) builder[T] {
	return builder[T]{
		items:  make([]indexItem[T], 0, max(capacity, 0)),
		extent: InvertedBox(),
	}
}

func (b *builder[T]) checkUsable() {
	if b.consumed {
		textPanic(errBuilderConsumed)
	}
}

func (b *builder[T]) insert(item T, geom Point) {
	b.checkUsable()
	b.items = append(b.items, indexItem[T]{geom: geom, item: item})
	b.extent.ExpandPoint(geom)
	b.sorted = false
}

// sortItems freezes the current extent as the quantization frame, and
// orders the items along the Hilbert curve.
func (b *builder[T]) sortItems() {
	b.checkUsable()
	if len(b.items) > 1 {
		q := newQuantizer(b.extent)
		keys := make([]uint32, len(b.items))
		for i := range b.items {
			keys[i] = q.key(b.items[i].geom)
		}
		sortItemsByKey(keys, b.items, 0, len(b.items)-1)
	}
	b.sorted = true
}

func (b *builder[T]) build() *Tree[T] {
	b.checkUsable()
	if len(b.items) >= NodeCapacity && !b.sorted {
		b.sortItems()
	}
	return b.buildSorted()
}

// buildSorted hands the items over to a new tree. The builder is unusable afterwards.
func (b *builder[T]) buildSorted() *Tree[T] {
	b.checkUsable()
	t := bulkLoad(b.items, b.extent)
	b.items = nil
	b.consumed = true
	return t
}

func (b *builder[T]) size() int {
	b.checkUsable()
	return len(b.items)
}

func (b *builder[T]) bounds() BBox {
	b.checkUsable()
	return b.extent
}

func (b *builder[T]) each(fn func(item T, geom Point) bool) {
	b.checkUsable()
	for i := range b.items {
		if !fn(b.items[i].item, b.items[i].geom) {
			return
		}
	}
}

// Builder accumulates items that know their own coordinates, and is turned into
// a queryable Tree by Build. A Builder can only be built once.
type Builder[T Coords] struct {
	b builder[T]
}

// NewBuilder creates an empty builder, with room for capacity items before it needs to grow.
func NewBuilder[T Coords](capacity int) *Builder[T] {
	return &Builder[T]{b: newBuilder[T](capacity)}
}

// Insert adds an item to the index. The item's coordinates are read once, here.
func (b *Builder[T]) Insert(item T) {
	b.b.insert(item, PointOf(item))
}

// Len returns the number of inserted items
func (b *Builder[T]) Len() int { return b.b.size() }

// IsEmpty is true if nothing has been inserted
func (b *Builder[T]) IsEmpty() bool { return b.b.size() == 0 }

// Extent returns the bounding box of everything inserted so far
func (b *Builder[T]) Extent() BBox { return b.b.bounds() }

// SortItems puts the items into Hilbert order, in preparation for BuildSorted.
// Items must not be inserted after sorting if BuildSorted is going to be used.
func (b *Builder[T]) SortItems() { b.b.sortItems() }

// Range calls fn for every item in its current order, until fn returns false.
// After SortItems, this is the order the tree will store them in.
func (b *Builder[T]) Range(fn func(item T, geom Point) bool) { b.b.each(fn) }

// Build sorts the items and builds the index.
// The builder is consumed, and any further use of it panics.
func (b *Builder[T]) Build() *Tree[T] { return b.b.build() }

// BuildSorted builds the index from items which have already been put in order by SortItems.
// The builder is consumed, and any further use of it panics.
func (b *Builder[T]) BuildSorted() *Tree[T] { return b.b.buildSorted() }

// PairBuilder accumulates items together with a separately supplied geometry.
// Use it for item types that can't report their own coordinates.
// Queries return only the item, never the geometry.
type PairBuilder[T any] struct {
	b builder[T]
}

// NewPairBuilder creates an empty builder, with room for capacity items before it needs to grow.
func NewPairBuilder[T any](capacity int) *PairBuilder[T] {
	return &PairBuilder[T]{b: newBuilder[T](capacity)}
}

// Insert adds an item at position geom
func (b *PairBuilder[T]) Insert(item T, geom Point) {
	b.b.insert(item, geom)
}

// Len returns the number of inserted items
func (b *PairBuilder[T]) Len() int { return b.b.size() }

// IsEmpty is true if nothing has been inserted
func (b *PairBuilder[T]) IsEmpty() bool { return b.b.size() == 0 }

// Extent returns the bounding box of everything inserted so far
func (b *PairBuilder[T]) Extent() BBox { return b.b.bounds() }

// SortItems puts the items into Hilbert order, in preparation for BuildSorted.
func (b *PairBuilder[T]) SortItems() { b.b.sortItems() }

// Range calls fn for every item in its current order, until fn returns false.
func (b *PairBuilder[T]) Range(fn func(item T, geom Point) bool) { b.b.each(fn) }

// Build sorts the items and builds the index. The builder is consumed.
func (b *PairBuilder[T]) Build() *Tree[T] { return b.b.build() }

// BuildSorted builds the index from items already sorted by SortItems. The builder is consumed.
func (b *PairBuilder[T]) BuildSorted() *Tree[T] { return b.b.buildSorted() }
