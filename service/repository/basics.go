package repository

import (
	"context"

	"github.com/bbars/chunkgate/service/types"
)

const (
	InitialMigrationName = "0000-00-00-00-00-00-initial.sql"
	MigrationTableName   = "chunkgate_migration"
)

// Site owns resource metadata and chunk lists of one site and decides who may read them.
type Site interface {
	Name() string

	// Options returns the methods allowed on path.
	Options(ctx context.Context, path string) (allow types.MethodMask, err error)

	// Head returns resource metadata, honoring conditional request fields.
	Head(ctx context.Context, method types.Method, req types.HeadRequest) (head *types.HeadResponse, err error)

	// ChunkList returns the ordered chunk addresses of the resource.
	ChunkList(ctx context.Context, method types.Method, path string) (list *types.ChunkList, err error)
}

type Sites interface {
	Site(ctx context.Context, name string) (site Site, err error)
}

type Repository interface {
	Sites
	Migrate() (err error)
	PutSite(ctx context.Context, site *types.Site) (err error)

	// DefineResource upserts properties and header policy without touching content.
	DefineResource(ctx context.Context, res *types.Resource) (err error)

	// WriteContent replaces (or appends to) the chunk list of a resource and bumps its version.
	// A nil props keeps the stored properties. A positive maxSize limits the resulting resource size.
	WriteContent(ctx context.Context, site string, path string, props *types.ResourceProperties, chunks []types.ChunkRef, appendChunks bool, maxSize int64) (res *types.Resource, err error)
}
