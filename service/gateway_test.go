package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bbars/chunkgate/service/storage"
	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRequest(chunks utils.Range, byteRange utils.Range) types.GetRequest {
	return types.GetRequest{
		Locate: types.LocateRequest{
			Head:   types.HeadRequest{Path: "/r"},
			Chunks: chunks,
		},
		Bytes: byteRange,
	}
}

func TestGatewayGet(t *testing.T) {
	g, _, _ := newTestGateway("AAAAA", "BBBBB")

	tests := []struct {
		name   string
		chunks utils.Range
		bytes  utils.Range
		data   string
		status types.Status
	}{
		{"full", utils.FullRange, utils.FullRange, "AAAAABBBBB", types.StatusFull},
		{"explicit full", utils.FullRange, utils.Range{Start: 0, End: 9}, "AAAAABBBBB", types.StatusPartial},
		{"across seam", utils.FullRange, utils.Range{Start: 3, End: 6}, "AABB", types.StatusPartial},
		{"first byte by negative end", utils.FullRange, utils.Range{Start: 0, End: -10}, "A", types.StatusPartial},
		{"tail", utils.FullRange, utils.Range{Start: -3, End: -1}, "BBB", types.StatusPartial},
		{"seam exact", utils.FullRange, utils.Range{Start: 4, End: 5}, "AB", types.StatusPartial},
		{"empty", utils.FullRange, utils.Range{Start: 5, End: 4}, "", types.StatusEmpty},
		{"second chunk", utils.Range{Start: 1, End: 1}, utils.FullRange, "BBBBB", types.StatusFull},
		{"second chunk bytes", utils.Range{Start: -1, End: -1}, utils.Range{Start: 0, End: 1}, "BB", types.StatusPartial},
		{"empty chunks", utils.Range{Start: 1, End: 0}, utils.FullRange, "", types.StatusEmpty},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp, err := g.Get(context.Background(), "s", getRequest(test.chunks, test.bytes))
			require.NoError(t, err)
			assert.Equal(t, test.status, resp.Head.Status)
			assert.Equal(t, test.data, string(resp.Data))
			assert.Len(t, resp.Data, int(resp.Bounds.Length()))
		})
	}
}

func TestGatewayGetFailures(t *testing.T) {
	g, _, _ := newTestGateway("AAAAA", "BBBBB")

	tests := []struct {
		name   string
		chunks utils.Range
		bytes  utils.Range
	}{
		{"one past the end", utils.FullRange, utils.Range{Start: 0, End: 10}},
		{"start past the end", utils.FullRange, utils.Range{Start: 10, End: 11}},
		{"too negative", utils.FullRange, utils.Range{Start: -11, End: -1}},
		{"chunk past the end", utils.Range{Start: 0, End: 2}, utils.FullRange},
		{"bytes past selected chunk", utils.Range{Start: 0, End: -2}, utils.Range{Start: 0, End: 5}},
		{"empty chunks, explicit bytes", utils.Range{Start: 1, End: 0}, utils.Range{Start: 0, End: 1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp, err := g.Get(context.Background(), "s", getRequest(test.chunks, test.bytes))
			assert.Nil(t, resp)
			var rangeErr *utils.RangeError
			assert.ErrorAs(t, err, &rangeErr)
			assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, StatusOf(err))
		})
	}
}

func TestGatewayLocate(t *testing.T) {
	g, _, _ := newTestGateway("AAA", "BBB", "CCC", "DDD", "EEE")

	resp, err := g.Locate(context.Background(), "s", types.LocateRequest{
		Head:   types.HeadRequest{Path: "/r"},
		Chunks: utils.Range{Start: 1, End: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartial, resp.Head.Status)
	assert.Equal(t, []string{storage.Address([]byte("BBB")), storage.Address([]byte("CCC"))}, resp.DataPoints)
	assert.Equal(t, []int64{3, 3}, resp.Structure.Sizes)
	assert.Equal(t, int64(6), resp.Structure.TotalSize)
	assert.Equal(t, 5, resp.TotalChunks)
	assert.Equal(t, int64(15), resp.Head.Metadata.Size)

	resp, err = g.Locate(context.Background(), "s", types.LocateRequest{
		Head: types.HeadRequest{Path: "/r"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFull, resp.Head.Status)
	assert.Len(t, resp.DataPoints, 5)
	assert.Equal(t, int64(15), resp.Structure.TotalSize)

	resp, err = g.Locate(context.Background(), "s", types.LocateRequest{
		Head:   types.HeadRequest{Path: "/r"},
		Chunks: utils.Range{Start: 3, End: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusEmpty, resp.Head.Status)
	assert.Empty(t, resp.DataPoints)
	assert.Equal(t, int64(0), resp.Structure.TotalSize)

	_, err = g.Locate(context.Background(), "s", types.LocateRequest{
		Head:   types.HeadRequest{Path: "/r"},
		Chunks: utils.Range{Start: 0, End: 5},
	})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, StatusOf(err))
}

func TestGatewayRoundTrip(t *testing.T) {
	compositions := [][]string{
		{"x"},
		{"AAAAA", "BBBBB"},
		{"abc", "", "defgh", "i"},
		{strings.Repeat("z", 1000), "tail"},
		{""},
	}
	for _, chunks := range compositions {
		g, _, ms := newTestGateway(chunks...)
		ctx := context.Background()

		loc, err := g.Locate(ctx, "s", types.LocateRequest{Head: types.HeadRequest{Path: "/r"}})
		require.NoError(t, err)

		buf := &bytes.Buffer{}
		for i, address := range loc.DataPoints {
			rc, err := ms.OpenRead(ctx, address, nil)
			require.NoError(t, err)
			n, err := io.Copy(buf, rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, loc.Structure.Sizes[i], n)
		}

		got, err := g.Get(ctx, "s", getRequest(utils.FullRange, utils.FullRange))
		require.NoError(t, err)
		assert.Equal(t, buf.String(), string(got.Data))
		assert.Equal(t, strings.Join(chunks, ""), string(got.Data))
		if buf.Len() == 0 {
			assert.Equal(t, types.StatusEmpty, got.Head.Status)
		} else {
			assert.Equal(t, types.StatusFull, got.Head.Status)
		}
	}
}

func TestGatewayReadsOnlyOverlappingChunks(t *testing.T) {
	_, _, ms := newTestGateway()
	var addresses []string
	for _, c := range []string{"AAA", "BBB", "CCC", "DDD"} {
		addresses = append(addresses, ms.Put([]byte(c)))
	}
	ctx := context.Background()
	sel, err := SelectChunks(ctx, ms, addresses, utils.FullRange)
	require.NoError(t, err)

	reader := &countingReader{ChunkReader: ms}
	body, err := Assemble(ctx, reader, sel, utils.Range{Start: 4, End: 6}, 0)
	require.NoError(t, err)
	assert.Equal(t, "BBC", string(body.Data))
	assert.Equal(t, map[string]int{addresses[1]: 1, addresses[2]: 1}, reader.opened)
}

func TestGatewayNotModified(t *testing.T) {
	g, site, _ := newTestGateway("AAAAA", "BBBBB")

	for _, status := range []types.Status{types.StatusNotModified, http.StatusMovedPermanently} {
		site.headStatus = status

		got, err := g.Get(context.Background(), "s", getRequest(utils.FullRange, utils.Range{Start: 0, End: 20}))
		require.NoError(t, err)
		assert.Equal(t, status, got.Head.Status)
		assert.Empty(t, got.Data)

		loc, err := g.Locate(context.Background(), "s", types.LocateRequest{Head: types.HeadRequest{Path: "/r"}})
		require.NoError(t, err)
		assert.Equal(t, status, loc.Head.Status)
		assert.Empty(t, loc.DataPoints)
	}
}

func TestGatewayErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		g, _, _ := newTestGateway("AAAAA")
		_, err := g.Get(ctx, "s", types.GetRequest{Locate: types.LocateRequest{Head: types.HeadRequest{Path: "/missing"}}})
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, StatusOf(err))

		_, err = g.Head(ctx, "other", types.HeadRequest{Path: "/r"})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("no chunks", func(t *testing.T) {
		g, _, _ := newTestGateway()
		_, err := g.Locate(ctx, "s", types.LocateRequest{Head: types.HeadRequest{Path: "/r"}})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("denied", func(t *testing.T) {
		g, site, _ := newTestGateway("AAAAA")
		site.methods = types.MaskOf(types.MethodHEAD)
		_, err := g.Head(ctx, "s", types.HeadRequest{Path: "/r"})
		assert.NoError(t, err)
		_, err = g.Locate(ctx, "s", types.LocateRequest{Head: types.HeadRequest{Path: "/r"}})
		assert.ErrorIs(t, err, types.ErrDenied)
		assert.Equal(t, http.StatusMethodNotAllowed, StatusOf(err))
		_, err = g.Options(ctx, "s", "/r")
		assert.ErrorIs(t, err, types.ErrDenied)
	})

	t.Run("version conflict", func(t *testing.T) {
		g, site, _ := newTestGateway("AAAAA")
		site.resources["/r"].listVersion = 2
		_, err := g.Get(ctx, "s", getRequest(utils.FullRange, utils.FullRange))
		assert.ErrorIs(t, err, types.ErrConflict)
		assert.Equal(t, http.StatusConflict, StatusOf(err))
	})

	t.Run("missing chunk", func(t *testing.T) {
		g, site, _ := newTestGateway("AAAAA")
		site.resources["/r"].addresses = append(site.resources["/r"].addresses, storage.Address([]byte("lost")))
		_, err := g.Get(ctx, "s", getRequest(utils.FullRange, utils.FullRange))
		assert.ErrorIs(t, err, storage.ErrChunkNotFound)
		assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	})

	t.Run("body too large", func(t *testing.T) {
		g, _, _ := newTestGateway("AAAAA", "BBBBB")
		g.Config.MaxBodySize = 4
		_, err := g.Get(ctx, "s", getRequest(utils.FullRange, utils.FullRange))
		assert.ErrorIs(t, err, types.ErrTooLarge)
		assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(err))

		got, err := g.Get(ctx, "s", getRequest(utils.FullRange, utils.Range{Start: 3, End: 6}))
		require.NoError(t, err)
		assert.Equal(t, "AABB", string(got.Data))
	})

	t.Run("panic", func(t *testing.T) {
		g, site, _ := newTestGateway("AAAAA")
		site.panicOn = "/r"
		_, err := g.Head(ctx, "s", types.HeadRequest{Path: "/r"})
		assert.ErrorContains(t, err, "internal error")
	})
}

func TestGatewayOptions(t *testing.T) {
	g, _, _ := newTestGateway("AAAAA")
	resp, err := g.Options(context.Background(), "s", "/r")
	require.NoError(t, err)
	assert.Equal(t, types.MethodMaskRead, resp.Allow)
	assert.Equal(t, []string{"HEAD", "GET", "OPTIONS", "LOCATE"}, resp.Methods)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusOf(nil))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(io.ErrUnexpectedEOF))
}
