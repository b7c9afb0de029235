package service

import (
	"context"
	"time"

	"github.com/bbars/chunkgate/service/repository"
	"github.com/bbars/chunkgate/service/storage"
	"github.com/bbars/chunkgate/service/types"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Gateway answers OPTIONS, HEAD, LOCATE and GET by combining a site with the chunk storage.
// It keeps no state between calls.
type Gateway struct {
	Sites   repository.Sites
	Storage storage.Storage
	Config  GatewayConfig
	Logger  *zap.Logger
}

func (g *Gateway) log() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func (g *Gateway) site(ctx context.Context, name string) (site repository.Site, err error) {
	site, err = g.Sites.Site(ctx, name)
	if err != nil {
		err = errors.Wrapf(err, "resolve site %+q", name)
		return
	}
	return
}

func (g *Gateway) Options(ctx context.Context, siteName string, path string) (resp *types.OptionsResponse, err error) {
	defer RecoverService(&err)

	site, err := g.site(ctx, siteName)
	if err != nil {
		return
	}

	allow, err := site.Options(ctx, path)
	if err != nil {
		err = errors.Wrapf(err, "options %+q", path)
		return
	}

	resp = &types.OptionsResponse{
		Status:  types.StatusFull,
		Allow:   allow,
		Methods: []string{},
	}
	for _, m := range allow.Methods() {
		resp.Methods = append(resp.Methods, m.String())
	}
	return
}

func (g *Gateway) Head(ctx context.Context, siteName string, req types.HeadRequest) (resp *types.HeadResponse, err error) {
	defer RecoverService(&err)
	start := time.Now()

	site, err := g.site(ctx, siteName)
	if err != nil {
		return
	}

	resp, err = site.Head(ctx, types.MethodHEAD, req)
	if err != nil {
		err = errors.Wrapf(err, "head %+q", req.Path)
		return
	}

	g.log().Debug(
		"head",
		zap.String("site", siteName),
		zap.String("path", req.Path),
		zap.Uint16("status", uint16(resp.Status)),
		zap.Duration("duration", time.Since(start)),
	)
	return
}

func (g *Gateway) Locate(ctx context.Context, siteName string, req types.LocateRequest) (resp *types.LocateResponse, err error) {
	defer RecoverService(&err)
	start := time.Now()

	head, sel, err := g.resolve(ctx, siteName, types.MethodLOCATE, req)
	if err != nil {
		err = errors.Wrapf(err, "locate %+q", req.Head.Path)
		return
	}

	resp = &types.LocateResponse{
		Head:       *head,
		DataPoints: []string{},
	}
	if sel == nil {
		return
	}

	resp.Head.Status = types.StatusOfBounds(sel.Bounds)
	resp.DataPoints = sel.Addresses
	resp.Structure = types.DataPointSizes{
		Sizes:     sel.Sizes,
		TotalSize: sel.TotalSize,
	}
	resp.TotalChunks = sel.TotalChunks

	g.log().Debug(
		"locate",
		zap.String("site", siteName),
		zap.String("path", req.Head.Path),
		zap.Stringer("chunks", req.Chunks),
		zap.Uint16("status", uint16(resp.Head.Status)),
		zap.Int("selected", len(sel.Addresses)),
		zap.String("size", units.BytesSize(float64(sel.TotalSize))),
		zap.Duration("duration", time.Since(start)),
	)
	return
}

func (g *Gateway) Get(ctx context.Context, siteName string, req types.GetRequest) (resp *types.GetResponse, err error) {
	defer RecoverService(&err)
	start := time.Now()

	head, sel, err := g.resolve(ctx, siteName, types.MethodGET, req.Locate)
	if err != nil {
		err = errors.Wrapf(err, "get %+q", req.Locate.Head.Path)
		return
	}

	resp = &types.GetResponse{
		Head: *head,
		Data: []byte{},
	}
	if sel == nil {
		return
	}

	body, err := Assemble(ctx, g.Storage, sel, req.Bytes, g.Config.MaxBodySize)
	if err != nil {
		resp = nil
		err = errors.Wrapf(err, "get %+q", req.Locate.Head.Path)
		return
	}

	resp.Head.Status = body.Status
	resp.Data = body.Data
	resp.Bounds = body.Bounds
	resp.Sizes = types.DataPointSizes{
		Sizes:     sel.Sizes,
		TotalSize: sel.TotalSize,
	}

	g.log().Debug(
		"get",
		zap.String("site", siteName),
		zap.String("path", req.Locate.Head.Path),
		zap.Stringer("chunks", req.Locate.Chunks),
		zap.Stringer("bytes", req.Bytes),
		zap.Uint16("status", uint16(resp.Head.Status)),
		zap.String("size", units.BytesSize(float64(len(resp.Data)))),
		zap.Duration("duration", time.Since(start)),
	)
	return
}

// resolve asks the site for metadata and the chunk list, then selects chunks.
// A nil selection means the site answered without a body (not modified or redirect).
func (g *Gateway) resolve(ctx context.Context, siteName string, method types.Method, req types.LocateRequest) (head *types.HeadResponse, sel *Selection, err error) {
	site, err := g.site(ctx, siteName)
	if err != nil {
		return
	}

	head, err = site.Head(ctx, method, req.Head)
	if err != nil {
		return
	}
	if !head.Status.HasBody() {
		return
	}

	list, err := site.ChunkList(ctx, method, req.Head.Path)
	if err != nil {
		head = nil
		return
	}
	if list.Version != head.Metadata.Version {
		err = errors.Wrapf(types.ErrConflict, "head version %d, chunk list version %d", head.Metadata.Version, list.Version)
		head = nil
		return
	}

	sel, err = SelectChunks(ctx, g.Storage, list.Addresses, req.Chunks)
	if err != nil {
		head = nil
		return
	}
	return
}
