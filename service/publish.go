package service

import (
	"bytes"
	"context"
	"io"

	"github.com/bbars/chunkgate/service/repository"
	"github.com/bbars/chunkgate/service/storage"
	"github.com/bbars/chunkgate/service/types"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Publisher splits content into fixed-size chunks, stores them and records the chunk list of a resource.
type Publisher struct {
	Repo    repository.Repository
	Storage storage.Storage
	Config  PublisherConfig
	Logger  *zap.Logger
}

type PublishRequest struct {
	Site string
	Path string

	// Properties - nil keeps the stored properties
	Properties *types.ResourceProperties

	// Append - add chunks after the existing ones instead of replacing them
	Append bool
}

func (p *Publisher) chunkSize() int64 {
	if p.Config.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.Config.ChunkSize
}

func (p *Publisher) Publish(ctx context.Context, req PublishRequest, data io.Reader) (res *types.Resource, err error) {
	defer RecoverService(&err)

	chunks, err := p.storeChunks(ctx, data)
	if err != nil {
		err = errors.Wrapf(err, "store chunks of %s%s", req.Site, req.Path)
		return
	}

	res, err = p.Repo.WriteContent(ctx, req.Site, req.Path, req.Properties, chunks, req.Append, p.Config.MaxSize)
	if err != nil {
		err = errors.Wrapf(err, "write content of %s%s", req.Site, req.Path)
		return
	}

	if p.Logger != nil {
		p.Logger.Info(
			"published",
			zap.String("site", req.Site),
			zap.String("path", req.Path),
			zap.Bool("append", req.Append),
			zap.Int("chunks", len(chunks)),
			zap.Int64("version", res.Version),
			zap.String("size", units.BytesSize(float64(res.Size))),
		)
	}
	return
}

// storeChunks writes data as a sequence of chunks. Empty data produces one empty chunk.
func (p *Publisher) storeChunks(ctx context.Context, data io.Reader) (chunks []types.ChunkRef, err error) {
	buf := make([]byte, p.chunkSize())
	var total int64
	for {
		if err = ctx.Err(); err != nil {
			return
		}

		var n int
		n, err = io.ReadFull(data, buf)
		last := false
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = nil
			last = true
		} else if err != nil {
			err = errors.Wrap(err, "read content")
			return
		}
		if n == 0 && last && len(chunks) > 0 {
			return
		}

		total += int64(n)
		if p.Config.MaxSize > 0 && total > p.Config.MaxSize {
			err = errors.Wrapf(types.ErrTooLarge, "content exceeds %s", units.BytesSize(float64(p.Config.MaxSize)))
			return
		}

		var ref types.ChunkRef
		_, ref.Address, ref.Size, err = p.Storage.Write(ctx, bytes.NewReader(buf[:n]), 0)
		if err != nil {
			err = errors.Wrapf(err, "write chunk %d", len(chunks))
			return
		}
		chunks = append(chunks, ref)

		if last {
			return
		}
	}
}
