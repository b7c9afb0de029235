package utils

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	QidTimeOrigin = 1672531200 // 2023-01-01T00:00:00Z

	// RequestIdLen - length of ids attached to gateway requests
	RequestIdLen = 16
)

var (
	qidRandomBytes = []byte("0123456789" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"abcdefghijklmnopqrstuvwxyz")
	qidRandomByteLen = len(qidRandomBytes)
)

// GenerateQid returns an id made of base32 seconds since QidTimeOrigin followed by random characters.
// Ids of the same length sort roughly by creation time.
func GenerateQid(n int) string {
	if n < 8 {
		panic("qid len is too small, must be in interval [8, 8192]")
	} else if n > (1 << 13) {
		panic("qid len is too big, must be in interval [8, 8192]")
	}
	t := uint64(time.Now().Unix() - QidTimeOrigin)
	res := strings.Builder{}
	res.Grow(n)
	i, _ := res.WriteString(strconv.FormatUint(t, 32))
	for i < n {
		// top level rand functions are safe for concurrent use
		res.WriteByte(qidRandomBytes[rand.Intn(qidRandomByteLen)])
		i++
	}
	return res.String()
}

func NewRequestId() string {
	return GenerateQid(RequestIdLen)
}
