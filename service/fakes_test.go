package service

import (
	"context"
	"io"
	"sync"

	"github.com/bbars/chunkgate/service/repository"
	"github.com/bbars/chunkgate/service/storage"
	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
)

type fakeResource struct {
	res       types.Resource
	addresses []string

	// listVersion - version reported by ChunkList, zero means res.Version
	listVersion int64
}

type fakeSite struct {
	name      string
	methods   types.MethodMask
	resources map[string]*fakeResource

	// headStatus - forced HEAD status, zero means 200
	headStatus types.Status
	panicOn    string
}

var _ repository.Site = &fakeSite{}

func (s *fakeSite) Name() string {
	return s.name
}

//goland:noinspection GoUnusedParameter
func (s *fakeSite) Options(ctx context.Context, path string) (allow types.MethodMask, err error) {
	if !s.methods.Allows(types.MethodOPTIONS) {
		err = types.ErrDenied
		return
	}
	allow = s.methods
	return
}

func (s *fakeSite) find(method types.Method, path string) (fr *fakeResource, err error) {
	if path == s.panicOn {
		panic("broken site")
	}
	if !s.methods.Allows(method) {
		err = errors.Wrap(types.ErrDenied, method.String())
		return
	}
	fr, ok := s.resources[path]
	if !ok || len(fr.addresses) == 0 {
		err = errors.Wrap(types.ErrNotFound, path)
		return
	}
	return
}

//goland:noinspection GoUnusedParameter
func (s *fakeSite) Head(ctx context.Context, method types.Method, req types.HeadRequest) (head *types.HeadResponse, err error) {
	fr, err := s.find(method, req.Path)
	if err != nil {
		return
	}
	head = &types.HeadResponse{
		Status:     types.StatusFull,
		HeaderInfo: fr.res.HeaderInfo(),
		Metadata:   fr.res.Metadata(),
		Etag:       "etag",
	}
	if s.headStatus != 0 {
		head.Status = s.headStatus
	}
	return
}

//goland:noinspection GoUnusedParameter
func (s *fakeSite) ChunkList(ctx context.Context, method types.Method, path string) (list *types.ChunkList, err error) {
	fr, err := s.find(method, path)
	if err != nil {
		return
	}
	list = &types.ChunkList{
		Version:   fr.res.Version,
		Addresses: fr.addresses,
	}
	if fr.listVersion != 0 {
		list.Version = fr.listVersion
	}
	return
}

type fakeSites map[string]*fakeSite

//goland:noinspection GoUnusedParameter
func (fs fakeSites) Site(ctx context.Context, name string) (site repository.Site, err error) {
	s, ok := fs[name]
	if !ok {
		err = errors.Wrapf(types.ErrNotFound, "site %s", name)
		return
	}
	site = s
	return
}

// newTestGateway serves one resource "/r" on site "s" made of the given chunks.
func newTestGateway(chunks ...string) (g *Gateway, site *fakeSite, ms *storage.MemoryStorage) {
	ms = storage.NewMemoryStorage()
	fr := &fakeResource{
		res: types.Resource{
			Site:         "s",
			Path:         "/r",
			MimeType:     "text/plain",
			Version:      1,
			LastModified: 1700000000,
		},
	}
	for _, c := range chunks {
		fr.addresses = append(fr.addresses, ms.Put([]byte(c)))
		fr.res.Size += int64(len(c))
	}
	site = &fakeSite{
		name:    "s",
		methods: types.MethodMaskRead,
		resources: map[string]*fakeResource{
			"/r": fr,
		},
	}
	g = &Gateway{
		Sites:   fakeSites{"s": site},
		Storage: ms,
	}
	return
}

// countingReader records which chunks were opened.
type countingReader struct {
	ChunkReader
	mu     sync.Mutex
	opened map[string]int
}

func (cr *countingReader) OpenRead(ctx context.Context, address string, span *utils.Span) (rc io.ReadCloser, err error) {
	cr.mu.Lock()
	if cr.opened == nil {
		cr.opened = map[string]int{}
	}
	cr.opened[address]++
	cr.mu.Unlock()
	return cr.ChunkReader.OpenRead(ctx, address, span)
}
