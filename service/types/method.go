package types

import (
	"strings"

	"github.com/pkg/errors"
)

type Method uint8

const (
	MethodHEAD Method = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodPATCH
	MethodDELETE
	MethodOPTIONS
	MethodLOCATE
	MethodDEFINE
	methodCount
)

var methodNames = [methodCount]string{
	"HEAD",
	"GET",
	"POST",
	"PUT",
	"PATCH",
	"DELETE",
	"OPTIONS",
	"LOCATE",
	"DEFINE",
}

func (m Method) String() string {
	if m >= methodCount {
		return "UNKNOWN"
	}
	return methodNames[m]
}

func ParseMethod(s string) (m Method, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range methodNames {
		if name == s {
			m = Method(i)
			return
		}
	}
	err = errors.Errorf("unknown method %+q", s)
	return
}

// MethodMask is a bitmask of allowed methods, bit (1 << Method).
type MethodMask uint16

const (
	MethodMaskNone MethodMask = 0
	MethodMaskRead MethodMask = 1<<MethodHEAD | 1<<MethodGET | 1<<MethodOPTIONS | 1<<MethodLOCATE
	MethodMaskAll  MethodMask = 1<<methodCount - 1
)

func MaskOf(methods ...Method) (mask MethodMask) {
	for _, m := range methods {
		mask |= 1 << m
	}
	return
}

func ParseMethodMask(names []string) (mask MethodMask, err error) {
	for _, name := range names {
		var m Method
		m, err = ParseMethod(name)
		if err != nil {
			return
		}
		mask |= 1 << m
	}
	return
}

func (mm MethodMask) Allows(m Method) bool {
	return m < methodCount && mm&(1<<m) != 0
}

func (mm MethodMask) Methods() (methods []Method) {
	for m := Method(0); m < methodCount; m++ {
		if mm.Allows(m) {
			methods = append(methods, m)
		}
	}
	return
}

// String renders the mask as an Allow header value.
func (mm MethodMask) String() string {
	methods := mm.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}
