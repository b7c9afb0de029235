package storage

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// AddressLen is the length of a hex encoded BLAKE3-256 digest.
const AddressLen = 64

var (
	ErrChunkNotFound  = errors.New("data point not found")
	ErrInvalidAddress = errors.New("invalid data point address")
	ErrChunkTooLarge  = errors.New("data point exceeds size limit")
)

// Storage is a content-addressed chunk store. Stored chunks are never mutated or removed.
type Storage interface {
	// Size returns the byte length of a chunk without reading its content.
	Size(ctx context.Context, address string) (size int64, err error)

	// OpenRead opens a chunk for reading. A nil span reads the whole chunk.
	OpenRead(ctx context.Context, address string, span *utils.Span) (rc io.ReadCloser, err error)

	Write(ctx context.Context, r io.Reader, maxSize int64) (exists bool, address string, size int64, err error)
	Check(ctx context.Context, address string) (exists bool, err error)
}

func Address(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func NewHasher() *blake3.Hasher {
	return blake3.New()
}

func ValidateAddress(address string) error {
	if len(address) != AddressLen {
		return ErrInvalidAddress
	}
	for i := 0; i < len(address); i++ {
		c := address[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return ErrInvalidAddress
		}
	}
	return nil
}

// copyLimited copies src into dst until EOF, checking ctx between reads.
// A positive maxSize fails the copy with ErrChunkTooLarge once exceeded.
func copyLimited(ctx context.Context, dst io.Writer, src io.Reader, maxSize int64) (written int64, err error) {
	buf := make([]byte, 32*1024)
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if maxSize > 0 && written+int64(n) > maxSize {
				err = errors.Wrapf(ErrChunkTooLarge, "limit is %d bytes", maxSize)
				return
			}
			var wn int
			wn, err = dst.Write(buf[:n])
			written += int64(wn)
			if err != nil {
				return
			}
			if wn != n {
				err = io.ErrShortWrite
				return
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			err = readErr
			return
		}
	}
}
