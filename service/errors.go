package service

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StatusOf maps a service failure to the HTTP status a transport should answer with.
func StatusOf(err error) int {
	var rangeErr *utils.RangeError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrDenied):
		return http.StatusMethodNotAllowed
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &rangeErr), errors.Is(err, types.ErrRange):
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

func RecoverService(err *error) {
	if r := recover(); r != nil {
		zap.L().Error(
			"RECOVERED PANIC",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		*err = fmt.Errorf("internal error: %+v", r)
	}
}
