package service

import (
	"context"
	"io"

	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
)

type ChunkReader interface {
	OpenRead(ctx context.Context, address string, span *utils.Span) (rc io.ReadCloser, err error)
}

// Body is the exact byte window cut out of a chunk selection.
type Body struct {
	Data   []byte
	Status types.Status

	// Bounds - normalized byte range within the selection
	Bounds utils.Bounds
}

// Assemble reads the bytes addressed by rng out of the concatenation of the selected chunks.
// Only chunks overlapping the window are read. A positive maxSize limits the window length.
func Assemble(ctx context.Context, reader ChunkReader, sel *Selection, rng utils.Range, maxSize int64) (body *Body, err error) {
	bounds, err := rng.Normalize(sel.TotalSize)
	if err != nil {
		err = errors.Wrap(err, "byte range")
		return
	}

	length := bounds.Length()
	if maxSize > 0 && length > maxSize {
		err = errors.Wrapf(types.ErrTooLarge, "%d bytes requested, limit is %d", length, maxSize)
		return
	}

	body = &Body{
		Data:   []byte{},
		Status: types.StatusOfBounds(bounds),
		Bounds: bounds,
	}
	if length == 0 {
		return
	}

	spans, ok := sel.Layout().Spans(bounds.Start, bounds.End)
	if !ok {
		body = nil
		err = errors.Errorf("byte range %d-%d does not fit selection of %d bytes", bounds.Start, bounds.End, sel.TotalSize)
		return
	}

	data := make([]byte, length)
	var pos int64
	for _, cs := range spans {
		err = readSpan(ctx, reader, sel.Addresses[cs.Index], cs.Span, data[pos:pos+cs.Span.Length])
		if err != nil {
			body = nil
			err = errors.Wrapf(err, "read chunk %d of selection", cs.Index)
			return
		}
		pos += cs.Span.Length
	}
	if pos != length {
		body = nil
		err = errors.Errorf("assembled %d bytes, expected %d", pos, length)
		return
	}

	body.Data = data
	return
}

func readSpan(ctx context.Context, reader ChunkReader, address string, span utils.Span, dst []byte) (err error) {
	rc, err := reader.OpenRead(ctx, address, &span)
	if err != nil {
		return
	}
	defer func() {
		closeErr := rc.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.ReadFull(rc, dst)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}
