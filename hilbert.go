package hprtree

import "math"

const (
	// HilbertOrder is the number of bits per axis that coordinates are
	// quantized to before being mapped onto the Hilbert curve (4096 cells per axis).
	HilbertOrder = 12

	// hilbertMax is the largest quantized coordinate on either axis.
	hilbertMax = (1 << HilbertOrder) - 1
)

// quantizer maps coordinates onto the Hilbert grid, relative to a frozen extent.
// A cell is floor((c - min) / stride), with stride = span / hilbertMax.
type quantizer struct {
	minX, minY   float32
	spanX, spanY float64
}

func newQuantizer(extent BBox) quantizer {
	q := quantizer{
		minX:  extent.MinX,
		minY:  extent.MinY,
		spanX: float64(extent.Width()),
		spanY: float64(extent.Height()),
	}
	// A dataset that is flat along an axis would otherwise divide by zero.
	// A span of hilbertMax is a stride of 1.
	if q.spanX == 0 {
		q.spanX = hilbertMax
	}
	if q.spanY == 0 {
		q.spanY = hilbertMax
	}
	return q
}

func (q *quantizer) cell(p Point) (uint32, uint32) {
	x := float64(p[0]-q.minX) * hilbertMax / q.spanX
	y := float64(p[1]-q.minY) * hilbertMax / q.spanY
	return quantizeAxis(x), quantizeAxis(y)
}

func quantizeAxis(v float64) uint32 {
	f := math.Floor(v)
	if !(f > 0) {
		return 0
	}
	if f > hilbertMax {
		return hilbertMax
	}
	return uint32(f)
}

// key returns the Hilbert distance of the grid cell that p falls into.
func (q *quantizer) key(p Point) uint32 {
	x, y := q.cell(p)
	return hilbertXYToIndex(HilbertOrder, x, y)
}

// hilbertXYToIndex maps the cell (x, y) of a 2^n by 2^n grid onto its distance
// along the Hilbert curve. n must be between 1 and 16.
func hilbertXYToIndex(n uint32, x uint32, y uint32) uint32 {
	x = x << (16 - n)
	y = y << (16 - n)

	var A, B, C, D uint32

	// Initial prefix scan round, prime with x and y
	{
		a := uint32(x ^ y)
		b := uint32(0xFFFF ^ a)
		c := uint32(0xFFFF ^ (x | y))
		d := uint32(x & (y ^ 0xFFFF))

		A = a | (b >> 1)
		B = (a >> 1) ^ a

		C = ((c >> 1) ^ (b & (d >> 1))) ^ c
		D = ((a & (c >> 1)) ^ (d >> 1)) ^ d
	}

	{
		a := A
		b := B
		c := C
		d := D

		A = ((a & (a >> 2)) ^ (b & (b >> 2)))
		B = ((a & (b >> 2)) ^ (b & ((a ^ b) >> 2)))

		C ^= ((a & (c >> 2)) ^ (b & (d >> 2)))
		D ^= ((b & (c >> 2)) ^ ((a ^ b) & (d >> 2)))
	}

	{
		a := A
		b := B
		c := C
		d := D

		A = ((a & (a >> 4)) ^ (b & (b >> 4)))
		B = ((a & (b >> 4)) ^ (b & ((a ^ b) >> 4)))

		C ^= ((a & (c >> 4)) ^ (b & (d >> 4)))
		D ^= ((b & (c >> 4)) ^ ((a ^ b) & (d >> 4)))
	}

	// Final round and projection
	{
		a := A
		b := B
		c := C
		d := D

		C ^= ((a & (c >> 8)) ^ (b & (d >> 8)))
		D ^= ((b & (c >> 8)) ^ ((a ^ b) & (d >> 8)))
	}

	// Undo transformation prefix scan
	a := uint32(C ^ (C >> 1))
	b := uint32(D ^ (D >> 1))

	// Recover index bits
	i0 := uint32(x ^ y)
	i1 := uint32(b | (0xFFFF ^ (i0 | a)))

	return ((interleave(i1) << 1) | interleave(i0)) >> (32 - 2*n)
}

// From https://github.com/rawrunprotected/hilbert_curves (public domain)
func interleave(x uint32) uint32 {
	x = (x | (x << 8)) & 0x00FF00FF
	x = (x | (x << 4)) & 0x0F0F0F0F
	x = (x | (x << 2)) & 0x33333333
	x = (x | (x << 1)) & 0x55555555
	return x
}

// custom quicksort that sorts the items alongside their hilbert values.
// Items with equal values end up in no particular order.
func sortItemsByKey[T any](values []uint32, items []indexItem[T], left, right int) {
	for left < right {
		pivot := values[(left+right)>>1]
		i := left - 1
		j := right + 1

		for {
			i++
			for values[i] < pivot {
				i++
			}
			j--
			for values[j] > pivot {
				j--
			}
			if i >= j {
				break
			}
			values[i], values[j] = values[j], values[i]
			items[i], items[j] = items[j], items[i]
		}

		// recurse into the smaller half, loop on the larger one
		if j-left < right-j {
			sortItemsByKey(values, items, left, j)
			left = j + 1
		} else {
			sortItemsByKey(values, items, j+1, right)
			right = j
		}
	}
}
