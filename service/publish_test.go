package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/bbars/chunkgate/migrations"
	"github.com/bbars/chunkgate/service/repository"
	"github.com/bbars/chunkgate/service/storage"
	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) repository.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.NewSqlite(db, migrations.FS)
	require.NoError(t, repo.Migrate())
	require.NoError(t, repo.PutSite(context.Background(), &types.Site{Name: "blog", Methods: types.MethodMaskRead}))
	return repo
}

func TestPublishAndServe(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ms := storage.NewMemoryStorage()
	pub := &Publisher{
		Repo:    repo,
		Storage: ms,
		Config:  PublisherConfig{ChunkSize: 4},
	}
	g := &Gateway{
		Sites:   repo,
		Storage: ms,
	}

	res, err := pub.Publish(ctx, PublishRequest{
		Site:       "blog",
		Path:       "/hello.txt",
		Properties: &types.ResourceProperties{MimeType: "text/plain"},
	}, strings.NewReader("hello, world"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.Size)
	assert.Equal(t, int64(1), res.Version)

	loc, err := g.Locate(ctx, "blog", types.LocateRequest{Head: types.HeadRequest{Path: "/hello.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 4, 4}, loc.Structure.Sizes)
	assert.Equal(t, "text/plain", loc.Head.Metadata.Properties.MimeType)

	got, err := g.Get(ctx, "blog", types.GetRequest{
		Locate: types.LocateRequest{Head: types.HeadRequest{Path: "/hello.txt"}},
		Bytes:  utils.Range{Start: 3, End: 8},
	})
	require.NoError(t, err)
	assert.Equal(t, "lo, wo", string(got.Data))
	assert.Equal(t, types.StatusPartial, got.Head.Status)

	_, err = pub.Publish(ctx, PublishRequest{
		Site:   "blog",
		Path:   "/hello.txt",
		Append: true,
	}, strings.NewReader("!!"))
	require.NoError(t, err)

	got, err = g.Get(ctx, "blog", types.GetRequest{
		Locate: types.LocateRequest{
			Head:   types.HeadRequest{Path: "/hello.txt"},
			Chunks: utils.Range{Start: -2, End: -1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "orld!!", string(got.Data))
	assert.Equal(t, types.StatusFull, got.Head.Status)
	assert.Equal(t, int64(14), got.Head.Metadata.Size)
	assert.Equal(t, int64(2), got.Head.Metadata.Version)
}

func TestPublishChunking(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		chunkSize int64
		sizes     []int64
	}{
		{"exact multiple", "abcdef", 3, []int64{3, 3}},
		{"remainder", "abcdefg", 3, []int64{3, 3, 1}},
		{"single", "ab", 3, []int64{2}},
		{"empty", "", 3, []int64{0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pub := &Publisher{
				Storage: storage.NewMemoryStorage(),
				Config:  PublisherConfig{ChunkSize: test.chunkSize},
			}
			chunks, err := pub.storeChunks(context.Background(), strings.NewReader(test.data))
			require.NoError(t, err)
			var sizes []int64
			for _, c := range chunks {
				sizes = append(sizes, c.Size)
			}
			assert.Equal(t, test.sizes, sizes)
		})
	}
}

func TestPublishTooLarge(t *testing.T) {
	pub := &Publisher{
		Storage: storage.NewMemoryStorage(),
		Config:  PublisherConfig{ChunkSize: 2, MaxSize: 5},
	}
	_, err := pub.storeChunks(context.Background(), strings.NewReader("abcdef"))
	assert.ErrorIs(t, err, types.ErrTooLarge)
}

func TestPublishAppendTooLarge(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	pub := &Publisher{
		Repo:    repo,
		Storage: storage.NewMemoryStorage(),
		Config:  PublisherConfig{ChunkSize: 4, MaxSize: 8},
	}
	req := PublishRequest{Site: "blog", Path: "/log.txt"}

	res, err := pub.Publish(ctx, req, strings.NewReader("12345678"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Size)

	req.Append = true
	_, err = pub.Publish(ctx, req, strings.NewReader("9"))
	assert.ErrorIs(t, err, types.ErrTooLarge)

	site, err := repo.Site(ctx, "blog")
	require.NoError(t, err)
	list, err := site.ChunkList(ctx, types.MethodGET, "/log.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Version)
	assert.Len(t, list.Addresses, 2)

	req.Append = false
	res, err = pub.Publish(ctx, req, strings.NewReader("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Size)
	assert.Equal(t, int64(2), res.Version)
}
