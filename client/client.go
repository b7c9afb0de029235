package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client talks to a remote gateway over HTTP. Retries happen here, never in the gateway.
type Client struct {
	BaseUrl string
	Http    *retryablehttp.Client
}

func New(baseUrl string, retryMax int, logger *zap.Logger) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = retryMax
	httpClient.RetryWaitMin = 100 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// redirects are resource policy to report, not to follow
	httpClient.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	httpClient.Logger = nil
	if logger != nil {
		httpClient.Logger = &leveledLogger{logger.Sugar()}
	}
	return &Client{
		BaseUrl: strings.TrimRight(baseUrl, "/"),
		Http:    httpClient,
	}
}

func (c *Client) resourceUrl(site string, path string, chunks utils.Range, bytes utils.Range) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	u := c.BaseUrl + "/" + url.PathEscape(site) + "/" + strings.Join(segments, "/")
	q := url.Values{}
	if !chunks.IsFull() {
		q.Set(types.QueryChunks, fmt.Sprintf("%d:%d", chunks.Start, chunks.End))
	}
	if !bytes.IsFull() {
		q.Set(types.QueryBytes, fmt.Sprintf("%d:%d", bytes.Start, bytes.End))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method string, rawUrl string, head types.HeadRequest, accept string) (resp *http.Response, err error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawUrl, nil)
	if err != nil {
		err = errors.Wrapf(err, "prepare %s request", method)
		return
	}
	if head.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", `"`+head.IfNoneMatch+`"`)
	}
	if head.IfModifiedSince > 0 {
		req.Header.Set("If-Modified-Since", time.Unix(head.IfModifiedSince, 0).UTC().Format(http.TimeFormat))
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if method == http.MethodGet {
		// stored content encoding must reach the caller untouched
		req.Header.Set("Accept-Encoding", "identity")
	}

	resp, err = c.Http.Do(req)
	if err != nil {
		err = errors.Wrapf(err, "%s %s", method, rawUrl)
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		err = unwrapError(resp)
		_ = resp.Body.Close()
		resp = nil
		return
	}
	return
}

func (c *Client) Options(ctx context.Context, site string, path string) (options *types.OptionsResponse, err error) {
	resp, err := c.do(ctx, http.MethodOptions, c.resourceUrl(site, path, utils.FullRange, utils.FullRange), types.HeadRequest{}, types.MimeJson)
	if err != nil {
		return
	}
	defer closeBody(resp)

	options = &types.OptionsResponse{}
	err = json.NewDecoder(resp.Body).Decode(options)
	if err != nil {
		options = nil
		err = errors.Wrap(err, "decode options")
		return
	}
	return
}

func (c *Client) Head(ctx context.Context, site string, req types.HeadRequest) (head *types.HeadResponse, err error) {
	resp, err := c.do(ctx, http.MethodHead, c.resourceUrl(site, req.Path, utils.FullRange, utils.FullRange), req, "")
	if err != nil {
		return
	}
	defer closeBody(resp)

	head = headOf(resp)
	return
}

func (c *Client) Locate(ctx context.Context, site string, req types.LocateRequest) (locate *types.LocateResponse, err error) {
	rawUrl := c.resourceUrl(site, req.Head.Path, req.Chunks, utils.FullRange)
	resp, err := c.do(ctx, types.HttpMethodLocate, rawUrl, req.Head, types.MimeCbor)
	if err != nil {
		return
	}
	defer closeBody(resp)

	locate = &types.LocateResponse{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), types.MimeCbor) {
		err = cbor.NewDecoder(resp.Body).Decode(locate)
	} else {
		err = json.NewDecoder(resp.Body).Decode(locate)
	}
	if err != nil {
		locate = nil
		err = errors.Wrap(err, "decode locate response")
		return
	}
	return
}

func (c *Client) Get(ctx context.Context, site string, req types.GetRequest) (get *types.GetResponse, err error) {
	rawUrl := c.resourceUrl(site, req.Locate.Head.Path, req.Locate.Chunks, req.Bytes)
	resp, err := c.do(ctx, http.MethodGet, rawUrl, req.Locate.Head, "")
	if err != nil {
		return
	}
	defer closeBody(resp)

	get = &types.GetResponse{
		Head: *headOf(resp),
	}
	get.Data, err = io.ReadAll(resp.Body)
	if err != nil {
		get = nil
		err = errors.Wrap(err, "read body")
		return
	}
	get.Sizes.TotalSize = headerInt(resp.Header, types.HeaderSelectionSize)
	return
}

// headOf restores head metadata from response headers.
func headOf(resp *http.Response) *types.HeadResponse {
	h := resp.Header
	head := &types.HeadResponse{
		Status: types.Status(resp.StatusCode),
		Etag:   strings.Trim(h.Get("ETag"), `"`),
	}
	if gatewayStatus := headerInt(h, types.HeaderGatewayStatus); gatewayStatus > 0 {
		head.Status = types.Status(gatewayStatus)
	}

	props := &head.Metadata.Properties
	if mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type")); err == nil {
		props.MimeType = mediaType
		props.Charset = params["charset"]
	}
	props.Encoding = h.Get("Content-Encoding")
	props.Language = h.Get("Content-Language")

	head.Metadata.Size = headerInt(h, types.HeaderSize)
	head.Metadata.Version = headerInt(h, types.HeaderVersion)
	if t, err := http.ParseTime(h.Get("Last-Modified")); err == nil {
		head.Metadata.LastModified = t.Unix()
	}

	head.HeaderInfo.Redirect.Location = h.Get("Location")
	if head.Status.IsRedirect() {
		head.HeaderInfo.Redirect.Code = uint16(head.Status)
	}
	return head
}

func headerInt(h http.Header, key string) int64 {
	v, err := strconv.ParseInt(h.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func unwrapError(resp *http.Response) error {
	doc := types.ErrorResponse{}
	data, err := io.ReadAll(resp.Body)
	if err == nil && len(data) > 0 {
		if strings.HasPrefix(resp.Header.Get("Content-Type"), types.MimeCbor) {
			err = cbor.Unmarshal(data, &doc)
		} else {
			err = json.Unmarshal(data, &doc)
		}
	}
	message := doc.Error
	if err != nil || message == "" {
		message = resp.Status
	}
	return types.ErrorOfStatus(resp.StatusCode, message)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = &leveledLogger{}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
