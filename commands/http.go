package commands

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bbars/chunkgate/ctxutil"
	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/types"
	serviceutils "github.com/bbars/chunkgate/service/utils"
	"github.com/bbars/chunkgate/utils"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/pat"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	siteRoute = "/{site}/{path:.*}"
	keySite   = ":site"
	keyPath   = ":path"
)

func NewHttpCommand(initGateway InitGateway) *cli.Command {
	sh := &serveHttp{}
	return &cli.Command{
		Name:  "http",
		Usage: "Start HTTP gateway",
		Description: "Byte ranges come from the Range header or the bytes=a:b query, chunk ranges from chunks=a:b.\n" +
			"'Range: bytes=0-0' and bytes=0:0 both mean the whole resource and are answered with 200,\n" +
			"so ask for bytes=0-1 to peek at the start of a large resource.",
		Action: sh.Action,
		Before: func(ctx *cli.Context) (err error) {
			gateway, err := initGateway(ctx)
			if err != nil {
				return
			}
			sh.init(gateway, ctx.String("fallback-mimetype"))
			return
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "bind",
				Usage:   "Address to bind HTTP server.",
				Value:   ":8080",
				EnvVars: []string{AppEnvPrefix + "HTTP_BIND"},
			},
			&cli.StringFlag{
				Name:    "fallback-mimetype",
				Usage:   "Fallback value for response Content-Type header.",
				Value:   "application/octet-stream",
				EnvVars: []string{AppEnvPrefix + "HTTP_FALLBACK_MIMETYPE"},
			},
		},
	}
}

type serveHttp struct {
	gateway          *service.Gateway
	logger           *zap.Logger
	registry         *prometheus.Registry
	metrics          *httpMetrics
	fallbackMimetype string
}

func (sh *serveHttp) init(gateway *service.Gateway, fallbackMimetype string) {
	sh.gateway = gateway
	sh.logger = gateway.Logger
	if sh.logger == nil {
		sh.logger = zap.NewNop()
	}
	sh.fallbackMimetype = fallbackMimetype
	sh.registry = prometheus.NewRegistry()
	sh.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sh.metrics = newHttpMetrics(sh.registry)
}

func (sh *serveHttp) Action(ctx *cli.Context) error {
	var err error
	bind := ctx.String("bind")

	lis, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	sh.logger.Info("listening", zap.String("addr", lis.Addr().String()))

	httpServer := &http.Server{
		Handler: sh.Handler(),
		ConnContext: func(httpCtx context.Context, c net.Conn) context.Context {
			// requests are cancelled on shutdown as well as on disconnect
			return ctxutil.WithServer(ctx.Context, ctx.Context)
		},
	}
	closed := make(chan struct{})
	go func() {
		httpServerErr := httpServer.Serve(lis)
		if httpServerErr != nil && httpServerErr != http.ErrServerClosed {
			sh.logger.Error("http server", zap.Error(httpServerErr))
		}
		close(closed)
	}()

	select {
	case <-ctx.Context.Done():
		err = httpServer.Close()
	case <-closed:
	}
	return err
}

func (sh *serveHttp) Handler() http.Handler {
	r := pat.New()

	// GET /metrics
	r.Handle("/metrics", promhttp.HandlerFor(sh.registry, promhttp.HandlerOpts{}))

	// OPTIONS /$site/$path
	r.Add(
		http.MethodOptions,
		siteRoute,
		sh.observe("options", gzhttp.GzipHandler(http.HandlerFunc(sh.options))),
	)
	// HEAD /$site/$path
	r.Add(
		http.MethodHead,
		siteRoute,
		sh.observe("head", http.HandlerFunc(sh.head)),
	)
	// LOCATE /$site/$path?chunks=a:b
	r.Add(
		types.HttpMethodLocate,
		siteRoute,
		sh.observe("locate", gzhttp.GzipHandler(http.HandlerFunc(sh.locate))),
	)
	// GET /$site/$path?chunks=a:b&bytes=a:b
	r.Add(
		http.MethodGet,
		siteRoute,
		sh.observe("get", http.HandlerFunc(sh.get)),
	)

	return r
}

// routeVars reads the values pat appended to the query, ignoring client supplied ones.
func routeVars(r *http.Request) (site string, path string) {
	q := r.URL.Query()
	site = lastValue(q, keySite)
	path = "/" + lastValue(q, keyPath)
	return
}

func lastValue(q url.Values, key string) string {
	values := q[key]
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func (sh *serveHttp) observe(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId := r.Header.Get(types.HeaderRequestId)
		if requestId == "" {
			requestId = serviceutils.NewRequestId()
		}
		w.Header().Set(types.HeaderRequestId, requestId)
		rec := &responseRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r.WithContext(ctxutil.SetRequestId(r.Context(), requestId)))

		d := time.Since(start)
		site, path := routeVars(r)
		sh.metrics.observe(site, r.Method, op, rec.Status(), d, rec.size)
		fields := []zap.Field{
			zap.String("requestId", requestId),
			zap.String("method", r.Method),
			zap.String("site", site),
			zap.String("path", path),
			zap.Int("status", rec.Status()),
			zap.Int("bytes", rec.size),
			zap.Duration("duration", d),
		}
		if reason := ctxutil.CancelReason(r.Context()); reason != "" {
			fields = append(fields, zap.String("cancelled", reason))
		}
		sh.logger.Info("request", fields...)
	})
}

func (sh *serveHttp) options(w http.ResponseWriter, r *http.Request) {
	site, path := routeVars(r)
	resp, err := sh.gateway.Options(r.Context(), site, path)
	if err != nil {
		sh.respondError(w, r, err)
		return
	}
	w.Header().Set("Allow", resp.Allow.String())
	sh.respond(w, r, http.StatusOK, resp)
}

func (sh *serveHttp) head(w http.ResponseWriter, r *http.Request) {
	site, path := routeVars(r)
	resp, err := sh.gateway.Head(r.Context(), site, headRequest(r, path))
	if err != nil {
		sh.respondError(w, r, err)
		return
	}
	sh.writeHead(w, r, resp, true)
	if resp.Status == types.StatusFull {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.Metadata.Size, 10))
	}
	w.WriteHeader(int(resp.Status))
}

func (sh *serveHttp) locate(w http.ResponseWriter, r *http.Request) {
	site, path := routeVars(r)
	chunks, err := utils.ParseRange(r.URL.Query().Get(types.QueryChunks))
	if err != nil {
		sh.respondError(w, r, err)
		return
	}
	resp, err := sh.gateway.Locate(r.Context(), site, types.LocateRequest{
		Head:   headRequest(r, path),
		Chunks: chunks,
	})
	if err != nil {
		sh.respondError(w, r, err)
		return
	}
	sh.writeHead(w, r, &resp.Head, false)
	w.Header().Set(types.HeaderSelectionSize, strconv.FormatInt(resp.Structure.TotalSize, 10))
	// the document always has a body, gateway status travels inside it
	sh.respond(w, r, http.StatusOK, resp)
}

func (sh *serveHttp) get(w http.ResponseWriter, r *http.Request) {
	site, path := routeVars(r)
	chunks, err := utils.ParseRange(r.URL.Query().Get(types.QueryChunks))
	if err != nil {
		sh.respondError(w, r, err)
		return
	}
	bytesRange, err := byteRange(r)
	if err != nil {
		sh.respondError(w, r, err)
		return
	}

	resp, err := sh.gateway.Get(r.Context(), site, types.GetRequest{
		Locate: types.LocateRequest{
			Head:   headRequest(r, path),
			Chunks: chunks,
		},
		Bytes: bytesRange,
	})
	if err != nil {
		sh.respondError(w, r, err)
		return
	}

	sh.writeHead(w, r, &resp.Head, true)
	h := w.Header()
	switch resp.Head.Status {
	case types.StatusFull, types.StatusPartial:
		h.Set(types.HeaderSelectionSize, strconv.FormatInt(resp.Sizes.TotalSize, 10))
		h.Set("Content-Length", strconv.Itoa(len(resp.Data)))
		if resp.Head.Status == types.StatusPartial {
			h.Set("Content-Range", resp.Bounds.ContentRange(resp.Sizes.TotalSize))
		}
	case types.StatusEmpty:
		h.Set(types.HeaderSelectionSize, strconv.FormatInt(resp.Sizes.TotalSize, 10))
		h.Del("Content-Type")
	}
	w.WriteHeader(int(resp.Head.Status))
	if len(resp.Data) == 0 {
		return
	}
	_, writeErr := w.Write(resp.Data)
	if writeErr != nil {
		sh.logger.Warn("write body", zap.String("requestId", ctxutil.RequestId(r.Context())), zap.Error(writeErr))
	}
}

func headRequest(r *http.Request, path string) (req types.HeadRequest) {
	req.Path = path
	if inm := strings.TrimSpace(r.Header.Get("If-None-Match")); inm != "" {
		req.IfNoneMatch = strings.Trim(strings.TrimPrefix(inm, "W/"), `"`)
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			req.IfModifiedSince = t.Unix()
		}
	}
	return
}

// byteRange reads the Range header, falling back to the bytes query parameter.
func byteRange(r *http.Request) (rng utils.Range, err error) {
	if header := r.Header.Get("Range"); header != "" {
		var parsed *utils.Range
		parsed, err = utils.ParseHttpRangeHeader(header)
		if err != nil {
			return
		}
		rng = *parsed
		return
	}
	return utils.ParseRange(r.URL.Query().Get(types.QueryBytes))
}

func (sh *serveHttp) writeHead(w http.ResponseWriter, r *http.Request, head *types.HeadResponse, entity bool) {
	h := w.Header()
	meta := head.Metadata

	if entity {
		contentType := meta.Properties.ContentType()
		if contentType == "" {
			contentType = sh.fallbackMimetype
		}
		h.Set("Content-Type", contentType)
		if meta.Properties.Encoding != "" {
			h.Set("Content-Encoding", meta.Properties.Encoding)
		}
		if meta.Properties.Language != "" {
			h.Set("Content-Language", meta.Properties.Language)
		}
		h.Set("Accept-Ranges", "bytes")
	}

	h.Set("Last-Modified", meta.LastModifiedTime().Format(http.TimeFormat))
	h.Set("ETag", `"`+head.Etag+`"`)
	h.Set(types.HeaderVersion, strconv.FormatInt(meta.Version, 10))
	h.Set(types.HeaderSize, strconv.FormatInt(meta.Size, 10))
	h.Set(types.HeaderGatewayStatus, strconv.Itoa(int(head.Status)))

	if cc := head.HeaderInfo.Cache.Header(); cc != "" {
		h.Set("Cache-Control", cc)
	}
	cors := head.HeaderInfo.CORS
	if origin := allowOrigin(cors.Origins, r.Header.Get("Origin")); origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	if cors.Methods != types.MethodMaskNone {
		h.Set("Access-Control-Allow-Methods", cors.Methods.String())
	}
	if head.Status.IsRedirect() && head.HeaderInfo.Redirect.Location != "" {
		h.Set("Location", head.HeaderInfo.Redirect.Location)
	}
}

func allowOrigin(origins []string, origin string) string {
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

func (sh *serveHttp) respond(w http.ResponseWriter, r *http.Request, code int, payload any) {
	var data []byte
	var err error
	contentType := types.MimeJson
	if strings.Contains(r.Header.Get("Accept"), types.MimeCbor) {
		contentType = types.MimeCbor
		data, err = cbor.Marshal(payload)
	} else {
		data, err = json.Marshal(payload)
		data = append(data, '\n')
	}
	if err != nil {
		sh.logger.Error("encode response", zap.String("requestId", ctxutil.RequestId(r.Context())), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_, err = w.Write(data)
	if err != nil {
		sh.logger.Warn("write response", zap.String("requestId", ctxutil.RequestId(r.Context())), zap.Error(err))
	}
}

func (sh *serveHttp) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.StatusOf(err)
	fields := []zap.Field{
		zap.String("requestId", ctxutil.RequestId(r.Context())),
		zap.Int("status", code),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		sh.logger.Error("request failed", fields...)
	} else {
		sh.logger.Debug("request failed", fields...)
	}
	sh.respond(w, r, code, types.ErrorResponse{
		Code:        code,
		Error:       err.Error(),
		Description: http.StatusText(code),
	})
}
