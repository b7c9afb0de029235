package repository

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/bbars/chunkgate/service/types"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

type sqliteSite struct {
	sq   *sqlite
	site *types.Site
}

var _ Site = &sqliteSite{}

func (s *sqliteSite) Name() string {
	return s.site.Name
}

// allowed returns the method mask of a resource, falling back to the site default.
func (s *sqliteSite) allowed(res *types.Resource) types.MethodMask {
	if res != nil && res.CORSMethods != types.MethodMaskNone {
		return res.CORSMethods
	}
	return s.site.Methods
}

// load reads the resource and its chunk addresses in one transaction after the access check.
func (s *sqliteSite) load(ctx context.Context, method types.Method, path string) (res *types.Resource, addresses []string, err error) {
	tx, err := s.sq.Db.BeginTxx(ctx, nil)
	if err != nil {
		err = errors.Wrap(err, "begin transaction")
		return
	}
	defer func() {
		// read only, nothing to commit
		_ = tx.Rollback()
	}()

	res, err = getResource(ctx, tx, s.site.Name, path)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return
	}
	if !s.allowed(res).Allows(method) {
		res = nil
		err = errors.Wrapf(types.ErrDenied, "%s %s%s", method, s.site.Name, path)
		return
	}
	if err != nil {
		return
	}

	addresses, err = getChunkAddresses(ctx, tx, s.site.Name, path)
	if err != nil {
		return
	}
	if len(addresses) == 0 {
		err = errors.Wrapf(types.ErrNotFound, "resource %s%s has no content", s.site.Name, path)
		return
	}
	return
}

func (s *sqliteSite) Options(ctx context.Context, path string) (allow types.MethodMask, err error) {
	res, err := getResource(ctx, s.sq.Db, s.site.Name, path)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return
	}
	err = nil
	allow = s.allowed(res)
	if !allow.Allows(types.MethodOPTIONS) {
		allow = types.MethodMaskNone
		err = errors.Wrapf(types.ErrDenied, "%s %s%s", types.MethodOPTIONS, s.site.Name, path)
		return
	}
	return
}

func (s *sqliteSite) Head(ctx context.Context, method types.Method, req types.HeadRequest) (head *types.HeadResponse, err error) {
	res, addresses, err := s.load(ctx, method, req.Path)
	if err != nil {
		return
	}

	head = &types.HeadResponse{
		Status:     types.StatusFull,
		HeaderInfo: res.HeaderInfo(),
		Metadata:   res.Metadata(),
		Etag:       Etag(res, addresses),
	}
	head.Status = conditionalStatus(head, req)
	return
}

func (s *sqliteSite) ChunkList(ctx context.Context, method types.Method, path string) (list *types.ChunkList, err error) {
	res, addresses, err := s.load(ctx, method, path)
	if err != nil {
		return
	}
	list = &types.ChunkList{
		Version:   res.Version,
		Addresses: addresses,
	}
	return
}

func conditionalStatus(head *types.HeadResponse, req types.HeadRequest) types.Status {
	redirect := types.Status(head.HeaderInfo.Redirect.Code)
	if redirect.IsRedirect() {
		return redirect
	}
	// If-None-Match takes precedence over If-Modified-Since
	if req.IfNoneMatch != "" {
		if req.IfNoneMatch == head.Etag {
			return types.StatusNotModified
		}
		return types.StatusFull
	}
	if req.IfModifiedSince > 0 && head.Metadata.LastModified <= req.IfModifiedSince {
		return types.StatusNotModified
	}
	return types.StatusFull
}

// Etag is a BLAKE3 digest over the resource identity, version, metadata and chunk addresses.
func Etag(res *types.Resource, addresses []string) string {
	h := blake3.New()
	_, _ = fmt.Fprintf(
		h,
		"%s\x00%s\x00%d\x00%d\x00%d\x00%s\x00%s\x00%s\x00%s\x00",
		res.Site,
		res.Path,
		res.Version,
		res.LastModified,
		res.Size,
		res.MimeType,
		res.Charset,
		res.Encoding,
		res.Language,
	)
	for _, address := range addresses {
		_, _ = h.Write([]byte(address))
	}
	return hex.EncodeToString(h.Sum(nil))
}
