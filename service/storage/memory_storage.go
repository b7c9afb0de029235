package storage

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
)

// MemoryStorage is an in-memory Storage implementation.
type MemoryStorage struct {
	mu     sync.RWMutex
	chunks map[string][]byte
}

var _ Storage = &MemoryStorage{}

// NewMemoryStorage returns a MemoryStorage preloaded with the given chunks.
func NewMemoryStorage(chunks ...[]byte) *MemoryStorage {
	ms := &MemoryStorage{
		chunks: map[string][]byte{},
	}
	for _, c := range chunks {
		ms.Put(c)
	}
	return ms
}

// Put stores a chunk and returns its address.
func (ms *MemoryStorage) Put(data []byte) (address string) {
	address = Address(data)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.chunks == nil {
		ms.chunks = map[string][]byte{}
	}
	if _, ok := ms.chunks[address]; !ok {
		ms.chunks[address] = append([]byte(nil), data...)
	}
	return
}

func (ms *MemoryStorage) get(address string) (data []byte, err error) {
	ms.mu.RLock()
	data, ok := ms.chunks[address]
	ms.mu.RUnlock()
	if !ok {
		err = errors.Wrapf(ErrChunkNotFound, "address %s", address)
	}
	return
}

//goland:noinspection GoUnusedParameter
func (ms *MemoryStorage) Size(ctx context.Context, address string) (size int64, err error) {
	data, err := ms.get(address)
	size = int64(len(data))
	return
}

//goland:noinspection GoUnusedParameter
func (ms *MemoryStorage) OpenRead(ctx context.Context, address string, span *utils.Span) (rc io.ReadCloser, err error) {
	data, err := ms.get(address)
	if err != nil {
		return
	}
	rc = io.NopCloser(bytes.NewReader(data))
	if span != nil {
		rc = utils.NewRangeReader(rc, *span)
	}
	return
}

func (ms *MemoryStorage) Write(ctx context.Context, r io.Reader, maxSize int64) (exists bool, address string, size int64, err error) {
	buf := &bytes.Buffer{}
	size, err = copyLimited(ctx, buf, r, maxSize)
	if err != nil {
		err = errors.Wrap(err, "read chunk data stream")
		return
	}
	exists, err = ms.Check(ctx, Address(buf.Bytes()))
	if err != nil {
		return
	}
	address = ms.Put(buf.Bytes())
	return
}

//goland:noinspection GoUnusedParameter
func (ms *MemoryStorage) Check(ctx context.Context, address string) (exists bool, err error) {
	ms.mu.RLock()
	_, exists = ms.chunks[address]
	ms.mu.RUnlock()
	return
}
