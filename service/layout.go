package service

import (
	"sort"

	"github.com/bbars/chunkgate/utils"
)

// ChunkLayout maps offsets of a chunk concatenation to chunks using prefix sums of their sizes.
type ChunkLayout struct {
	// offsets[i] is the first global offset of chunk i, offsets[len] is the total size
	offsets []int64
}

type ChunkSpan struct {
	Index int
	Span  utils.Span
}

func NewChunkLayout(sizes []int64) *ChunkLayout {
	offsets := make([]int64, len(sizes)+1)
	for i, size := range sizes {
		offsets[i+1] = offsets[i] + size
	}
	return &ChunkLayout{
		offsets: offsets,
	}
}

func (l *ChunkLayout) Len() int {
	return len(l.offsets) - 1
}

func (l *ChunkLayout) TotalSize() int64 {
	return l.offsets[len(l.offsets)-1]
}

func (l *ChunkLayout) Size(index int) int64 {
	return l.offsets[index+1] - l.offsets[index]
}

// Locate returns the chunk holding the global offset and the offset within that chunk.
// Empty chunks never hold an offset.
func (l *ChunkLayout) Locate(offset int64) (index int, local int64, ok bool) {
	if offset < 0 || offset >= l.TotalSize() {
		return
	}
	n := l.Len()
	index = sort.Search(n, func(i int) bool {
		return l.offsets[i+1] > offset
	})
	local = offset - l.offsets[index]
	ok = true
	return
}

// Spans returns the per-chunk windows covering the inclusive global range [start, end], in chunk order.
func (l *ChunkLayout) Spans(start int64, end int64) (spans []ChunkSpan, ok bool) {
	if start > end {
		ok = true
		return
	}
	first, lo, okStart := l.Locate(start)
	last, hi, okEnd := l.Locate(end)
	if !okStart || !okEnd {
		return
	}
	spans = make([]ChunkSpan, 0, last-first+1)
	for i := first; i <= last; i++ {
		from := int64(0)
		if i == first {
			from = lo
		}
		to := l.Size(i) - 1
		if i == last {
			to = hi
		}
		if to < from {
			continue
		}
		spans = append(spans, ChunkSpan{
			Index: i,
			Span: utils.Span{
				Offset: from,
				Length: to - from + 1,
			},
		})
	}
	ok = true
	return
}
