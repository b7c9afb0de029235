package commands

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/bbars/chunkgate/client"
	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/types"
	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// GatewayReader is served both by a local gateway and by a remote one.
type GatewayReader interface {
	Options(ctx context.Context, site string, path string) (resp *types.OptionsResponse, err error)
	Head(ctx context.Context, site string, req types.HeadRequest) (resp *types.HeadResponse, err error)
	Locate(ctx context.Context, site string, req types.LocateRequest) (resp *types.LocateResponse, err error)
	Get(ctx context.Context, site string, req types.GetRequest) (resp *types.GetResponse, err error)
}

var (
	_ GatewayReader = &service.Gateway{}
	_ GatewayReader = &client.Client{}
)

const (
	fetchModeGet     = "get"
	fetchModeHead    = "head"
	fetchModeLocate  = "locate"
	fetchModeOptions = "options"
)

func NewFetchCommand(initGateway InitGateway, initLogger InitLogger) *cli.Command {
	f := fetch{
		jsonOut: json.NewEncoder(os.Stdout),
		out:     os.Stdout,
	}
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Read resources through a local or remote gateway",
		ArgsUsage: "site path... (path '-' reads paths from stdin)",
		Action:    f.Action,
		Before: func(ctx *cli.Context) (err error) {
			f.mode = strings.ToLower(ctx.String("mode"))
			switch f.mode {
			case fetchModeGet, fetchModeHead, fetchModeLocate, fetchModeOptions:
			default:
				err = errors.Errorf("unknown mode %+q", f.mode)
				return
			}
			f.raw = ctx.Bool("raw")
			f.chunks, err = utils.ParseRange(ctx.String("chunks"))
			if err != nil {
				err = errors.Wrap(err, "invalid chunks flag")
				return
			}
			f.bytes, err = utils.ParseRange(ctx.String("bytes"))
			if err != nil {
				err = errors.Wrap(err, "invalid bytes flag")
				return
			}
			f.ifNoneMatch = ctx.String("if-none-match")

			f.logger, err = initLogger(ctx)
			if err != nil {
				return
			}
			if gatewayUrl := ctx.String("gateway"); gatewayUrl != "" {
				f.reader = client.New(gatewayUrl, ctx.Int("retry-max"), f.logger)
				return
			}
			f.reader, err = initGateway(ctx)
			return
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "gateway",
				Usage:   "Base URL of a remote gateway. Local storage is read when empty.",
				EnvVars: []string{AppEnvPrefix + "GATEWAY"},
			},
			&cli.IntFlag{
				Name:  "retry-max",
				Usage: "Retries of a failed remote request.",
				Value: 3,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "One of get, head, locate, options.",
				Value: fetchModeGet,
			},
			&cli.StringFlag{
				Name:  "chunks",
				Usage: "Chunk range 'start:end', negative values count from the end. Empty selects everything.",
			},
			&cli.StringFlag{
				Name:  "bytes",
				Usage: "Byte range 'start:end' within the selected chunks.",
			},
			&cli.StringFlag{
				Name:  "if-none-match",
				Usage: "ETag of a cached copy.",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Write binary content as is instead of a hex dump.",
			},
		},
	}
}

type fetch struct {
	reader      GatewayReader
	logger      *zap.Logger
	jsonOut     *json.Encoder
	out         io.Writer
	mode        string
	raw         bool
	chunks      utils.Range
	bytes       utils.Range
	ifNoneMatch string
}

func (f *fetch) Action(ctx *cli.Context) (err error) {
	var scanner *bufio.Scanner

	args := ctx.Args()
	if args.Len() < 2 {
		err = errors.New("site and at least one path are required")
		return
	}
	site := args.First()
	paths := make([]string, 0, args.Len()-1)
	for _, path := range args.Tail() {
		if path == "-" {
			scanner = bufio.NewScanner(os.Stdin)
			continue
		}
		paths = append(paths, path)
	}

	failed := 0
	for _, path := range paths {
		if !f.processOne(ctx.Context, site, path) {
			failed++
		}
	}

	if scanner != nil {
		for scanner.Scan() {
			if !f.processOne(ctx.Context, site, scanner.Text()) {
				failed++
			}
		}
		err = scanner.Err()
		if err != nil {
			return
		}
	}

	if failed > 0 {
		err = errors.Errorf("%d of the requests failed", failed)
	}
	return
}

func (f *fetch) processOne(ctx context.Context, site string, path string) (ok bool) {
	head := types.HeadRequest{
		Path:        path,
		IfNoneMatch: f.ifNoneMatch,
	}

	var res any
	var err error
	switch f.mode {
	case fetchModeOptions:
		res, err = f.reader.Options(ctx, site, path)
	case fetchModeHead:
		res, err = f.reader.Head(ctx, site, head)
	case fetchModeLocate:
		res, err = f.reader.Locate(ctx, site, types.LocateRequest{
			Head:   head,
			Chunks: f.chunks,
		})
	default:
		var get *types.GetResponse
		get, err = f.reader.Get(ctx, site, types.GetRequest{
			Locate: types.LocateRequest{
				Head:   head,
				Chunks: f.chunks,
			},
			Bytes: f.bytes,
		})
		if err == nil {
			err = f.writeContent(get)
		}
	}
	if err != nil {
		f.logger.Error("fetch", zap.String("site", site), zap.String("path", path), zap.Error(err))
		return
	}

	if res != nil {
		jsonErr := f.jsonOut.Encode(res)
		if jsonErr != nil {
			f.logger.Error("encode", zap.Error(jsonErr))
			return
		}
	}
	ok = true
	return
}

func (f *fetch) writeContent(get *types.GetResponse) (err error) {
	f.logger.Info(
		"fetched",
		zap.Uint16("status", uint16(get.Head.Status)),
		zap.String("etag", get.Head.Etag),
		zap.Int64("version", get.Head.Metadata.Version),
		zap.Int("bytes", len(get.Data)),
	)
	if len(get.Data) == 0 {
		return
	}
	if f.raw || get.Head.Metadata.Properties.IsText() {
		_, err = f.out.Write(get.Data)
		return
	}
	dumper := hex.Dumper(f.out)
	_, err = dumper.Write(get.Data)
	if err != nil {
		return
	}
	err = dumper.Close()
	return
}
