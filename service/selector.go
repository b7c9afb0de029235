package service

import (
	"context"

	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
)

type ChunkSizer interface {
	Size(ctx context.Context, address string) (size int64, err error)
}

// Selection is the chunk sub-sequence picked by a chunk range.
type Selection struct {
	Addresses []string
	Sizes     []int64
	TotalSize int64

	// Bounds - normalized chunk range
	Bounds utils.Bounds

	// TotalChunks - chunk count of the whole resource
	TotalChunks int
}

func (sel *Selection) Layout() *ChunkLayout {
	return NewChunkLayout(sel.Sizes)
}

// SelectChunks normalizes rng against the chunk list and asks the sizer for the size of every selected chunk.
func SelectChunks(ctx context.Context, sizer ChunkSizer, addresses []string, rng utils.Range) (sel *Selection, err error) {
	bounds, err := rng.Normalize(int64(len(addresses)))
	if err != nil {
		err = errors.Wrap(err, "chunk range")
		return
	}

	sel = &Selection{
		Bounds:      bounds,
		TotalChunks: len(addresses),
	}
	if bounds.IsEmpty() {
		sel.Addresses = []string{}
		sel.Sizes = []int64{}
		return
	}

	sel.Addresses = addresses[bounds.Start : bounds.End+1]
	sel.Sizes = make([]int64, len(sel.Addresses))
	for i, address := range sel.Addresses {
		var size int64
		size, err = sizer.Size(ctx, address)
		if err != nil {
			sel = nil
			err = errors.Wrapf(err, "size of chunk %d", bounds.Start+int64(i))
			return
		}
		sel.Sizes[i] = size
		sel.TotalSize += size
	}
	return
}
