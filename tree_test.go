package hprtree

import (
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taggedPoint is an item that knows its own coordinates
type taggedPoint struct {
	x, y float32
	tag  int
}

func (p taggedPoint) X() float32 { return p.x }
func (p taggedPoint) Y() float32 { return p.y }

func bruteForce(points []taggedPoint, b *BBox) []int {
	r := []int{}
	for _, p := range points {
		if b.Contains(Point{p.x, p.y}) {
			r = append(r, p.tag)
		}
	}
	return r
}

func tags(r []taggedPoint) []int {
	t := make([]int, 0, len(r))
	for _, p := range r {
		t = append(t, p.tag)
	}
	return t
}

func randomPoints(rng *rand.Rand, n int, dim float32) []taggedPoint {
	points := make([]taggedPoint, n)
	for i := range points {
		points[i] = taggedPoint{
			x:   rng.Float32()*dim*2 - dim,
			y:   rng.Float32()*dim - dim/2,
			tag: i,
		}
	}
	return points
}

func buildTagged(points []taggedPoint) *Tree[taggedPoint] {
	b := NewBuilder[taggedPoint](len(points))
	for _, p := range points {
		b.Insert(p)
	}
	return b.Build()
}

// buildGrid inserts a 720x360 grid covering the whole globe at a 0.5 degree step.
// Each item is tagged i*1000+j, with i the column and j the row.
func buildGrid() *Tree[int] {
	b := NewPairBuilder[int](720 * 360)
	x := float32(-180)
	for i := 0; i < 720; i++ {
		y := float32(-90)
		for j := 0; j < 360; j++ {
			b.Insert(i*1000+j, Point{x, y})
			y += 0.5
		}
		x += 0.5
	}
	return b.Build()
}

func TestEmpty(t *testing.T) {
	tree := NewBuilder[Point](0).Build()
	require.True(t, tree.IsEmpty())
	require.Equal(t, 0, tree.Len())
	require.Equal(t, 0, tree.NumLayers())
	require.Equal(t, 0, len(tree.Query(&BBox{0, 0, 1, 1})))
	require.Equal(t, 0, len(tree.Query(&BBox{-1e30, -1e30, 1e30, 1e30})))
}

func TestScenarioNames(t *testing.T) {
	b := NewPairBuilder[string](10)
	b.Insert("Bob", Point{0, 0})
	for i := 0; i < 2; i++ {
		b.Insert("Alice", Point{1, 1})
	}
	b.Insert("James", Point{2.5, -2.5})
	b.Insert("Annie", Point{20, 1})
	for i := 0; i < 5; i++ {
		b.Insert("Thomas", Point{1, -50})
	}
	tree := b.Build()

	result := tree.Query(&BBox{-5, -5, 5, 5})
	assert.ElementsMatch(t, []string{"Bob", "Alice", "Alice", "James"}, result)

	result = tree.QueryFast(&BBox{-5, -5, 5, 5}, make([]string, 0, 4))
	assert.ElementsMatch(t, []string{"Bob", "Alice", "Alice", "James"}, result)
}

func TestGrid(t *testing.T) {
	tree := buildGrid()
	require.Equal(t, 720*360, tree.Len())

	list := tree.Query(&BBox{-10, -10, 10, 10})
	require.Equal(t, 1681, len(list))
	for _, elem := range list {
		j := elem % 1000
		i := (elem - j) / 1000
		require.LessOrEqual(t, j, 200)
		require.GreaterOrEqual(t, j, 160)
		require.LessOrEqual(t, i, 380)
		require.GreaterOrEqual(t, i, 340)
	}
}

func TestBasic(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	points := randomPoints(rng, 10000, 100)
	tree := buildTagged(points)
	require.Equal(t, len(points), tree.Len())

	totalResults := 0
	nSamples := 1000
	maxQueryWindow := float32(20)
	results := []taggedPoint{}
	for i := 0; i < nSamples; i++ {
		minx := rng.Float32()*240 - 120
		miny := rng.Float32()*120 - 60
		qbox := BBox{
			MinX: minx,
			MinY: miny,
			MaxX: minx + rng.Float32()*maxQueryWindow,
			MaxY: miny + rng.Float32()*maxQueryWindow,
		}
		expected := bruteForce(points, &qbox)
		require.ElementsMatch(t, expected, tags(tree.Query(&qbox)))

		results = tree.QueryFast(&qbox, results)
		require.ElementsMatch(t, expected, tags(results))
		totalResults += len(results)
	}
	require.Greater(t, totalResults, 0)
}

func TestTotality(t *testing.T) {
	for _, n := range []int{1, 5, 15, 16, 17, 255, 256, 257, 4097} {
		rng := rand.New(rand.NewSource(int64(n)))
		points := randomPoints(rng, n, 50)
		tree := buildTagged(points)
		extent := tree.Extent()

		all := tree.Query(&extent)
		require.Equal(t, n, len(all), "n=%d", n)
		require.ElementsMatch(t, tags(points), tags(all), "n=%d", n)
	}
}

func TestBelowNodeCapacityHasNoLayers(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tree := buildTagged(randomPoints(rng, NodeCapacity-1, 10))
	assert.Equal(t, 0, tree.NumLayers())
	assert.Empty(t, tree.layerStart)
	assert.Empty(t, tree.nodeBounds)

	tree = buildTagged(randomPoints(rng, NodeCapacity, 10))
	assert.Equal(t, 1, tree.NumLayers())
	assert.Equal(t, []int{0, 1}, tree.layerStart)
}

func TestDisjointQuerySkipsNodes(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	tree := buildTagged(randomPoints(rng, 1000, 10))
	require.Greater(t, tree.NumLayers(), 0)

	// any access to the node bounds would now panic
	tree.nodeBounds = nil
	require.Empty(t, tree.Query(&BBox{100, 100, 200, 200}))
	require.Empty(t, tree.QueryFast(&BBox{-200, -200, -100, -100}, nil))
}

func TestBoundaryInclusive(t *testing.T) {
	b := NewPairBuilder[string](32)
	// filler so that the tree has layers
	for i := 0; i < 40; i++ {
		b.Insert("filler", Point{float32(i) + 100, 100})
	}
	b.Insert("left", Point{-1, 0})
	b.Insert("right", Point{1, 0})
	b.Insert("bottom", Point{0, -1})
	b.Insert("top", Point{0, 1})
	b.Insert("corner", Point{1, 1})
	b.Insert("outside", Point{1.0001, 0})
	tree := b.Build()

	require.ElementsMatch(t, []string{"left", "right", "bottom", "top", "corner"}, tree.Query(&BBox{-1, -1, 1, 1}))
	require.Equal(t, []string{"corner"}, tree.Query(&BBox{1, 1, 1, 1}))
}

func TestPresortEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	points := randomPoints(rng, 5000, 90)

	direct := buildTagged(points)

	b := NewBuilder[taggedPoint](len(points))
	for _, p := range points {
		b.Insert(p)
	}
	b.SortItems()
	presorted := b.BuildSorted()

	require.Equal(t, direct.layerStart, presorted.layerStart)
	for i := 0; i < 200; i++ {
		minx := rng.Float32()*180 - 90
		miny := rng.Float32()*90 - 45
		qbox := BBox{minx, miny, minx + rng.Float32()*30, miny + rng.Float32()*30}
		require.ElementsMatch(t, tags(direct.Query(&qbox)), tags(presorted.Query(&qbox)))
	}
}

func TestDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	points := randomPoints(rng, 3000, 40)

	a := buildTagged(points)
	b := buildTagged(points)
	require.Equal(t, a.layerStart, b.layerStart)
	require.Equal(t, a.nodeBounds, b.nodeBounds)
	for i := 0; i < 200; i++ {
		minx := rng.Float32()*80 - 40
		miny := rng.Float32()*40 - 20
		qbox := BBox{minx, miny, minx + rng.Float32()*10, miny + rng.Float32()*10}
		require.ElementsMatch(t, tags(a.Query(&qbox)), tags(b.Query(&qbox)))
	}
}

func TestDegenerateExtent(t *testing.T) {
	b := NewPairBuilder[int](100)
	for i := 0; i < 100; i++ {
		b.Insert(i, Point{7, -3})
	}
	extent := b.Extent()
	assert.Equal(t, float32(0), extent.Width())
	assert.Equal(t, float32(0), extent.Height())

	tree := b.Build()
	require.Equal(t, 100, len(tree.Query(&BBox{7, -3, 7, -3})))
	require.Equal(t, 100, len(tree.Query(&BBox{0, -10, 10, 10})))
	require.Empty(t, tree.Query(&BBox{7.5, -3, 8, -3}))

	// a line of points is flat along one axis only
	lb := NewPairBuilder[int](100)
	for i := 0; i < 100; i++ {
		lb.Insert(i, Point{float32(i), 5})
	}
	line := lb.Build()
	require.ElementsMatch(t, []int{10, 11, 12}, line.Query(&BBox{10, 0, 12, 10}))
}

func TestNodeBoundsCoverChildren(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tree := buildTagged(randomPoints(rng, 20000, 100))

	// every item sits inside its leaf block's box
	for i := range tree.items {
		leaf := tree.nodeBounds[i/NodeCapacity]
		require.True(t, leaf.Contains(tree.items[i].geom))
	}
	// every node's box covers all of its children
	for layer := 1; layer < tree.NumLayers(); layer++ {
		for p := 0; p < tree.layerStart[layer+1]-tree.layerStart[layer]; p++ {
			parent := tree.nodeBounds[tree.layerStart[layer]+p]
			for j := 0; j < NodeCapacity; j++ {
				child := tree.layerStart[layer-1] + NodeCapacity*p + j
				if child >= tree.layerStart[layer] {
					break
				}
				c := tree.nodeBounds[child]
				require.True(t, parent.Contains(Point{c.MinX, c.MinY}))
				require.True(t, parent.Contains(Point{c.MaxX, c.MaxY}))
			}
		}
	}
	// the root covers the extent exactly
	require.Equal(t, tree.Extent(), tree.nodeBounds[len(tree.nodeBounds)-1])
}

func TestConcurrentQueries(t *testing.T) {
	tree := buildGrid()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := []int{}
			for i := 0; i < 50; i++ {
				results = tree.QueryFast(&BBox{-10, -10, 10, 10}, results)
				assert.Equal(t, 1681, len(results))
			}
		}()
	}
	wg.Wait()
}

func TestEstimateResults(t *testing.T) {
	tree := buildGrid()
	// never more than there are items, never negative
	assert.Equal(t, tree.Len(), tree.estimateResults(&BBox{-1e30, -1e30, 1e30, 1e30}))
	assert.Equal(t, 0, tree.estimateResults(&BBox{10, 10, -10, -10}))
	assert.Greater(t, tree.estimateResults(&BBox{-10, -10, 10, 10}), 1000)
}

func TestSizeInBytes(t *testing.T) {
	tree := buildGrid()
	size := tree.SizeInBytes()
	require.Greater(t, size, tree.Len()*16)

	projected := ProjectedSizeInBytes[int](tree.Len())
	assert.InDelta(t, size, projected, float64(size)/20)

	assert.Greater(t, ProjectedSizeInBytes[int](0), 0)
	assert.Greater(t, ProjectedSizeInBytes[int](1000), ProjectedSizeInBytes[int](100))
}

func TestString(t *testing.T) {
	tree := buildGrid()
	s := tree.String()
	assert.True(t, strings.HasPrefix(s, "Tree{Extent:[-180,-90,179.5,89.5]"), s)
	assert.Contains(t, s, "Len:259200")
}

func BenchmarkBuild(b *testing.B) {
	for i := 0; i < b.N; i++ {
		start := time.Now()
		tree := buildGrid()
		b.Logf("Time to build %v elements: %.0f milliseconds", tree.Len(), time.Since(start).Seconds()*1000)
	}
}

func BenchmarkQuery(b *testing.B) {
	tree := buildGrid()
	results := []int{}
	nresults := 0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := float32(i % 9)
		results = tree.QueryFast(&BBox{-10 * k, -10 * k, 10 * k, 10 * k}, results)
		nresults += len(results)
	}
	b.ReportMetric(float64(nresults)/float64(b.N), "results/op")
}
