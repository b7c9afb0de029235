package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	a := Address([]byte("AAAAA"))
	assert.Len(t, a, AddressLen)
	assert.NoError(t, ValidateAddress(a))
	assert.Equal(t, a, Address([]byte("AAAAA")))
	assert.NotEqual(t, a, Address([]byte("BBBBB")))

	assert.ErrorIs(t, ValidateAddress("abc"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(strings.Repeat("g", AddressLen)), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("../"+a[3:]), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(strings.ToUpper(a)), ErrInvalidAddress)
}

func newDirStorage(t *testing.T) *DirStorage {
	return &DirStorage{
		Dir:       t.TempDir(),
		PathDepth: 2,
		DirPerm:   0755,
		FilePerm:  0644,
	}
}

func newFakeS3Storage() *S3Storage {
	return &S3Storage{
		Client: &fakeS3{objects: map[string][]byte{}},
		Bucket: "chunks",
		Prefix: "dp/",
	}
}

func TestStorages(t *testing.T) {
	storages := map[string]func(t *testing.T) Storage{
		"dir": func(t *testing.T) Storage {
			return newDirStorage(t)
		},
		"memory": func(t *testing.T) Storage {
			return NewMemoryStorage()
		},
		"s3": func(t *testing.T) Storage {
			return newFakeS3Storage()
		},
	}
	for name, newStorage := range storages {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := newStorage(t)
			content := []byte("0123456789")

			exists, address, size, err := st.Write(ctx, bytes.NewReader(content), 0)
			require.NoError(t, err)
			assert.False(t, exists)
			assert.Equal(t, Address(content), address)
			assert.Equal(t, int64(10), size)

			exists, address2, _, err := st.Write(ctx, bytes.NewReader(content), 0)
			require.NoError(t, err)
			assert.True(t, exists)
			assert.Equal(t, address, address2)

			exists, err = st.Check(ctx, address)
			require.NoError(t, err)
			assert.True(t, exists)

			size, err = st.Size(ctx, address)
			require.NoError(t, err)
			assert.Equal(t, int64(10), size)

			assertRead(t, st, address, nil, "0123456789")
			assertRead(t, st, address, &utils.Span{Offset: 3, Length: 4}, "3456")
			assertRead(t, st, address, &utils.Span{Offset: 0, Length: 1}, "0")
			assertRead(t, st, address, &utils.Span{Offset: 9, Length: 1}, "9")
			assertRead(t, st, address, &utils.Span{Offset: 5, Length: 0}, "")

			missing := Address([]byte("missing"))
			exists, err = st.Check(ctx, missing)
			require.NoError(t, err)
			assert.False(t, exists)
			_, err = st.Size(ctx, missing)
			assert.ErrorIs(t, err, ErrChunkNotFound)
			_, err = st.OpenRead(ctx, missing, nil)
			assert.ErrorIs(t, err, ErrChunkNotFound)

			_, err = st.Size(ctx, "not-an-address")
			if name != "memory" {
				assert.ErrorIs(t, err, ErrInvalidAddress)
			} else {
				assert.ErrorIs(t, err, ErrChunkNotFound)
			}

			_, _, _, err = st.Write(ctx, bytes.NewReader(content), 5)
			assert.ErrorIs(t, err, ErrChunkTooLarge)
		})
	}
}

func assertRead(t *testing.T, st Storage, address string, span *utils.Span, want string) {
	t.Helper()
	rc, err := st.OpenRead(context.Background(), address, span)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, rc.Close())
	}()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func TestDirStorageLayout(t *testing.T) {
	st := newDirStorage(t)
	_, address, _, err := st.Write(context.Background(), strings.NewReader("hello"), 0)
	require.NoError(t, err)

	path := filepath.Join(st.Dir, address[0:2], address[2:4], address)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fi.Mode().Perm())

	entries, err := os.ReadDir(st.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestDirStorageShortChunk(t *testing.T) {
	st := newDirStorage(t)
	_, address, _, err := st.Write(context.Background(), strings.NewReader("abc"), 0)
	require.NoError(t, err)

	rc, err := st.OpenRead(context.Background(), address, &utils.Span{Offset: 1, Length: 5})
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestMemoryStorageZeroValue(t *testing.T) {
	ms := &MemoryStorage{}
	address := ms.Put([]byte("abc"))
	assertRead(t, ms, address, nil, "abc")

	exists, _, _, err := ms.Write(context.Background(), strings.NewReader("abc"), 0)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err := NewMemoryStorage().Write(ctx, strings.NewReader("abc"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	objects map[string][]byte
}

var _ S3API = &fakeS3{}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	if params.Range != nil {
		var from, to int
		_, err := fmt.Sscanf(aws.ToString(params.Range), "bytes=%d-%d", &from, &to)
		if err != nil {
			return nil, err
		}
		if to >= len(data) {
			to = len(data) - 1
		}
		data = data[from : to+1]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}
