package types

import "github.com/bbars/chunkgate/utils"

type HeadRequest struct {
	Path string `json:"path"`

	// IfModifiedSince - unix seconds, zero disables the check
	IfModifiedSince int64 `json:"ifModifiedSince"`

	// IfNoneMatch - etag, empty disables the check
	IfNoneMatch string `json:"ifNoneMatch"`
}

type LocateRequest struct {
	Head   HeadRequest `json:"head"`
	Chunks utils.Range `json:"rangeChunks"`
}

type GetRequest struct {
	Locate LocateRequest `json:"locate"`
	Bytes  utils.Range   `json:"rangeBytes"`
}

type OptionsResponse struct {
	Status  Status     `json:"status"`
	Allow   MethodMask `json:"allow"`
	Methods []string   `json:"methods"`
}

type HeadResponse struct {
	Status     Status           `json:"status"`
	HeaderInfo HeaderInfo       `json:"headerInfo"`
	Metadata   ResourceMetadata `json:"metadata"`
	Etag       string           `json:"etag"`
}

// ChunkList is the ordered chunk addresses of a resource at a given version.
type ChunkList struct {
	Version   int64    `json:"version"`
	Addresses []string `json:"addresses"`
}

// ChunkRef is a stored chunk as recorded in a resource chunk list.
type ChunkRef struct {
	Address string `json:"address" db:"address"`
	Size    int64  `json:"size" db:"size"`
}

type DataPointSizes struct {
	Sizes     []int64 `json:"sizes"`
	TotalSize int64   `json:"totalSize"`
}

type LocateResponse struct {
	Head       HeadResponse   `json:"head"`
	DataPoints []string       `json:"dataPoints"`
	Structure  DataPointSizes `json:"structure"`

	// TotalChunks - number of chunks of the whole resource, not only the selection
	TotalChunks int `json:"totalChunks"`
}

type GetResponse struct {
	Head  HeadResponse   `json:"head"`
	Data  []byte         `json:"data"`
	Sizes DataPointSizes `json:"sizes"`

	// Bounds - resolved byte window within the chunk selection
	Bounds utils.Bounds `json:"-"`
}
