package utils

import (
	"errors"
	"io"
)

// NewRangeReader limits r to the given span. Reading fails with io.ErrUnexpectedEOF
// if r ends before the span is fully delivered.
func NewRangeReader(r io.Reader, span Span) (rr *rangeReader) {
	rr = &rangeReader{
		span: span,
		r:    r,
	}
	return
}

type rangeReader struct {
	span    Span
	r       io.Reader
	skipped bool
	read    int64
}

var _ io.ReadCloser = &rangeReader{}

func (rr *rangeReader) Read(p []byte) (n int, err error) {
	if rr.span.Offset < 0 || rr.span.Length < 0 {
		err = errors.New("negative span")
		return
	}
	if !rr.skipped {
		err = rr.skip()
		if err != nil {
			return
		}
		rr.skipped = true
	}
	remaining := rr.span.Length - rr.read
	if remaining <= 0 {
		err = io.EOF
		return
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = rr.r.Read(p)
	rr.read += int64(n)
	if err == io.EOF && rr.read < rr.span.Length {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (rr *rangeReader) skip() (err error) {
	if rr.span.Offset == 0 {
		return
	}
	if rs, ok := rr.r.(io.Seeker); ok {
		var initialPos int64
		var resultPos int64
		initialPos, err = rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return
		}
		resultPos, err = rs.Seek(rr.span.Offset, io.SeekCurrent)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return
		}
		if resultPos-initialPos < rr.span.Offset {
			err = io.ErrUnexpectedEOF
		}
		return
	}

	_, err = io.CopyN(io.Discard, rr.r, rr.span.Offset)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (rr *rangeReader) Close() error {
	if c, ok := rr.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
