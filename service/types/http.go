package types

import (
	"net/http"

	"github.com/pkg/errors"
)

const (
	HttpMethodLocate = "LOCATE"

	HeaderRequestId     = "X-Request-Id"
	HeaderVersion       = "X-Resource-Version"
	HeaderSize          = "X-Resource-Size"
	HeaderSelectionSize = "X-Selection-Size"
	HeaderGatewayStatus = "X-Gateway-Status"

	QueryChunks = "chunks"
	QueryBytes  = "bytes"

	MimeJson = "application/json"
	MimeCbor = "application/cbor"
)

// ErrorResponse is the body of a failed gateway response.
type ErrorResponse struct {
	Code        int    `json:"code"`
	Error       string `json:"error"`
	Description string `json:"description"`
}

// ErrorOfStatus restores the failure kind of a gateway HTTP status.
func ErrorOfStatus(code int, message string) error {
	var kind error
	switch code {
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusMethodNotAllowed:
		kind = ErrDenied
	case http.StatusConflict:
		kind = ErrConflict
	case http.StatusRequestEntityTooLarge:
		kind = ErrTooLarge
	case http.StatusRequestedRangeNotSatisfiable:
		kind = ErrRange
	default:
		return errors.Errorf("gateway status %d: %s", code, message)
	}
	return errors.Wrap(kind, message)
}
