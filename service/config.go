package service

type GatewayConfig struct {
	// MaxBodySize - upper limit of an assembled GET body, zero disables the limit
	MaxBodySize int64
}

type PublisherConfig struct {
	// ChunkSize - size of every chunk but the last one
	ChunkSize int64

	// MaxSize - upper limit of a single published resource, zero disables the limit
	MaxSize int64
}

const DefaultChunkSize = 256 * 1024
