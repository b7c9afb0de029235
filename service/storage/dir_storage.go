package storage

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
)

// FanoutLen - hex characters of the address per directory level
const FanoutLen = 2

// DirStorage keeps every chunk in a file named by its address,
// fanned out into PathDepth levels of directories: Dir/ab/cd/abcd...
//
//goland:noinspection GoNameStartsWithPackageName
type DirStorage struct {
	Dir       string
	PathDepth uint8
	DirPerm   os.FileMode
	FilePerm  os.FileMode
}

var _ Storage = &DirStorage{}

//goland:noinspection GoUnusedParameter
func (storage *DirStorage) Size(ctx context.Context, address string) (size int64, err error) {
	fi, err := storage.stat(address)
	if err != nil {
		return
	}
	size = fi.Size()
	return
}

// OpenRead seeks straight to the span. A span reaching past the end of the chunk
// is reported by the reader as io.ErrUnexpectedEOF.
//
//goland:noinspection GoUnusedParameter
func (storage *DirStorage) OpenRead(ctx context.Context, address string, span *utils.Span) (rc io.ReadCloser, err error) {
	path, err := storage.chunkPath(address)
	if err != nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = errors.Wrapf(ErrChunkNotFound, "address %s", address)
			return
		}
		err = errors.Wrapf(err, "open chunk %+q", path)
		return
	}
	if span == nil {
		rc = f
		return
	}
	rc = utils.NewRangeReader(f, *span)
	return
}

// Write stores the stream under its digest. Content already present is not rewritten.
func (storage *DirStorage) Write(ctx context.Context, r io.Reader, maxSize int64) (exists bool, address string, size int64, err error) {
	tmp, err := os.CreateTemp(storage.Dir, ".chunk-*")
	if err != nil {
		err = errors.Wrap(err, "create temp chunk")
		return
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath == "" {
			return
		}
		rmErr := os.Remove(tmpPath)
		if rmErr != nil && err == nil {
			err = errors.Wrapf(rmErr, "remove temp chunk %+q", tmpPath)
		}
	}()

	hasher := NewHasher()
	size, err = copyLimited(ctx, io.MultiWriter(tmp, hasher), r, maxSize)
	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		err = errors.Wrap(err, "store chunk stream")
		return
	}
	address = hex.EncodeToString(hasher.Sum(nil))

	path, err := storage.chunkPath(address)
	if err != nil {
		return
	}
	exists, err = isFile(path)
	if err != nil || exists {
		return
	}

	err = os.MkdirAll(filepath.Dir(path), storage.DirPerm)
	if err != nil {
		err = errors.Wrapf(err, "create fanout dirs for %s", address)
		return
	}
	err = os.Chmod(tmpPath, storage.FilePerm)
	if err != nil {
		err = errors.Wrapf(err, "chmod %#o on %+q", storage.FilePerm, tmpPath)
		return
	}
	err = os.Rename(tmpPath, path)
	if err != nil {
		err = errors.Wrapf(err, "move chunk into %+q", path)
		return
	}
	tmpPath = ""
	return
}

//goland:noinspection GoUnusedParameter
func (storage *DirStorage) Check(ctx context.Context, address string) (exists bool, err error) {
	path, err := storage.chunkPath(address)
	if err != nil {
		return
	}
	exists, err = isFile(path)
	return
}

func (storage *DirStorage) stat(address string) (fi os.FileInfo, err error) {
	path, err := storage.chunkPath(address)
	if err != nil {
		return
	}
	fi, err = os.Stat(path)
	if os.IsNotExist(err) {
		err = errors.Wrapf(ErrChunkNotFound, "address %s", address)
		return
	}
	if err != nil {
		err = errors.Wrapf(err, "stat chunk %+q", path)
		return
	}
	return
}

func (storage *DirStorage) chunkPath(address string) (path string, err error) {
	err = ValidateAddress(address)
	if err != nil {
		err = errors.Wrapf(err, "address %+q", address)
		return
	}
	depth := int(storage.PathDepth)
	if depth*FanoutLen > len(address) {
		err = errors.Errorf("path depth %d is too deep for %d character addresses", depth, len(address))
		return
	}
	parts := make([]string, 0, depth+2)
	parts = append(parts, storage.Dir)
	for i := 0; i < depth; i++ {
		parts = append(parts, address[i*FanoutLen:(i+1)*FanoutLen])
	}
	parts = append(parts, address)
	path = filepath.Join(parts...)
	return
}

func isFile(path string) (exists bool, err error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		err = nil
		return
	}
	if err != nil {
		return
	}
	if fi.IsDir() {
		err = errors.Errorf("chunk path %+q is a directory", path)
		return
	}
	exists = true
	return
}
