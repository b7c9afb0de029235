package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Range is a signed inclusive selector over an extent of chunks or bytes.
// Negative values count from the end of the extent (-1 is the last element).
// The zero value {0, 0} selects the whole extent.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

var FullRange = Range{}

func (r Range) IsFull() bool {
	return r.Start == 0 && r.End == 0
}

func (r Range) String() string {
	if r.IsFull() {
		return "*"
	}
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

type BoundsKind uint8

const (
	BoundsFull BoundsKind = iota
	BoundsExplicit
	BoundsEmpty
)

func (k BoundsKind) String() string {
	switch k {
	case BoundsFull:
		return "full"
	case BoundsExplicit:
		return "explicit"
	case BoundsEmpty:
		return "empty"
	}
	return "unknown"
}

// Bounds is a normalized Range: zero-based inclusive indices within a known extent.
type Bounds struct {
	Kind  BoundsKind
	Start int64
	End   int64
}

func (b Bounds) Length() int64 {
	if b.Kind == BoundsEmpty || b.End < b.Start {
		return 0
	}
	return b.End - b.Start + 1
}

func (b Bounds) IsEmpty() bool {
	return b.Length() == 0
}

// Normalize resolves r against an extent of the given length.
// Any explicit index outside [0, extent) after negative rewriting is a *RangeError.
func (r Range) Normalize(extent int64) (b Bounds, err error) {
	if extent < 0 {
		err = &RangeError{Range: r, Extent: extent, message: "negative extent"}
		return
	}
	if r.IsFull() {
		b = Bounds{Kind: BoundsFull, Start: 0, End: extent - 1}
		return
	}

	start := r.Start
	if start < 0 {
		start += extent
	}
	end := r.End
	if end < 0 {
		end += extent
	}
	if start < 0 || start >= extent || end < 0 || end >= extent {
		err = &RangeError{Range: r, Extent: extent, message: "out of bounds"}
		return
	}

	if start > end {
		b = Bounds{Kind: BoundsEmpty, Start: start, End: end}
		return
	}
	b = Bounds{Kind: BoundsExplicit, Start: start, End: end}
	return
}

// ContentRange formats explicit bounds as a Content-Range header value.
func (b Bounds) ContentRange(size int64) string {
	if b.IsEmpty() {
		return fmt.Sprintf("bytes */%d", size)
	}
	return fmt.Sprintf(
		"bytes %d-%d/%d",
		b.Start,
		b.End,
		size,
	)
}

// ParseRange parses "start:end" as used in query strings. Empty string is the full range.
func ParseRange(s string) (r Range, err error) {
	if s == "" || s == "*" {
		return
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		err = &RangeError{message: "range must look like start:end"}
		return
	}
	r.Start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		err = errors.Wrap(&RangeError{message: "invalid range start"}, err.Error())
		return
	}
	r.End, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		err = errors.Wrap(&RangeError{message: "invalid range end"}, err.Error())
		return
	}
	return
}

// ParseHttpRangeHeader converts a single "bytes=" range into a selector:
// "bytes=a-b" is {a, b}, "bytes=a-" is {a, -1}, "bytes=-n" is {-n, -1}.
// "bytes=0-0" collapses into the full selector, which a server is allowed to answer with 200.
func ParseHttpRangeHeader(s string) (r *Range, err error) {
	r = &Range{}
	sLen := len(s)
	if sLen < 8 || s[0:6] != "bytes=" {
		err = &RangeError{message: "range supports bytes only"}
		return
	}

	bld := strings.Builder{}
	var from string
	var to string
	bldTo := false

	for _, c := range s[6:] {
		if '0' <= c && c <= '9' {
			bld.WriteRune(c)
		} else if c == '-' {
			if bldTo {
				err = &RangeError{message: "invalid range syntax"}
				return
			}
			from = bld.String()
			bld.Reset()
			bldTo = true
		} else {
			err = &RangeError{message: "invalid range syntax"}
			return
		}
	}
	to = bld.String()
	if !bldTo {
		err = &RangeError{message: "invalid range syntax"}
		return
	}

	switch {
	case from != "" && to != "":
		r.Start, _ = strconv.ParseInt(from, 10, 64)
		r.End, _ = strconv.ParseInt(to, 10, 64)
		if r.Start > r.End {
			err = errors.Wrap(&RangeError{Range: *r}, "negative length")
			return
		}
	case from == "" && to != "":
		var n int64
		n, _ = strconv.ParseInt(to, 10, 64)
		if n == 0 {
			err = &RangeError{message: "empty suffix range"}
			return
		}
		r.Start = -n
		r.End = -1
	case from != "":
		r.Start, _ = strconv.ParseInt(from, 10, 64)
		r.End = -1
	default:
		err = &RangeError{message: "invalid range syntax"}
		return
	}
	return
}

type RangeError struct {
	Range   Range
	Extent  int64
	message string
}

var _ error = &RangeError{}

func (re *RangeError) Error() string {
	if re.message != "" {
		if re.Range.IsFull() && re.Extent == 0 {
			return re.message
		}
		return fmt.Sprintf("%s: range %s, extent %d", re.message, re.Range, re.Extent)
	}
	return "invalid range"
}

// Span is a concrete offset/length window inside a single blob.
type Span struct {
	Offset int64
	Length int64
}
