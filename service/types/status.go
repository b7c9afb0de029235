package types

import (
	"net/http"

	"github.com/bbars/chunkgate/utils"
)

// Status mirrors HTTP status codes.
type Status uint16

const (
	StatusFull        Status = http.StatusOK
	StatusEmpty       Status = http.StatusNoContent
	StatusPartial     Status = http.StatusPartialContent
	StatusNotModified Status = http.StatusNotModified
)

func (s Status) IsRedirect() bool {
	return s >= 300 && s < 400 && s != StatusNotModified
}

// HasBody reports whether chunk resolution should run after the site answered HEAD.
func (s Status) HasBody() bool {
	return s == StatusFull
}

func (s Status) String() string {
	return http.StatusText(int(s))
}

// StatusOfBounds classifies a normalized selection.
func StatusOfBounds(b utils.Bounds) Status {
	switch {
	case b.IsEmpty():
		return StatusEmpty
	case b.Kind == utils.BoundsFull:
		return StatusFull
	default:
		return StatusPartial
	}
}
