package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/types"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func NewStoreFilesCommand(initPublisher InitPublisher) *cli.Command {
	sf := storeFile{
		publisher: nil,
		jsonOut:   json.NewEncoder(os.Stdout),
	}
	return &cli.Command{
		Name:      "storefiles",
		Usage:     "Publish local files as resources of a site",
		ArgsUsage: "file... (file '-' reads file names from stdin)",
		Action:    sf.Action,
		Before: func(ctx *cli.Context) (err error) {
			sf.publisher, err = initPublisher(ctx)
			if err != nil {
				return
			}
			sf.site = ctx.String("site")
			sf.prefix = "/" + strings.Trim(ctx.String("prefix"), "/")
			return
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "site",
				Usage:    "Site to publish into.",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Resource path prefix, the file base name is appended to it.",
				Value: "/",
			},
		},
	}
}

type storeFile struct {
	publisher *service.Publisher
	jsonOut   *json.Encoder
	site      string
	prefix    string
}

func (sf *storeFile) Action(ctx *cli.Context) (err error) {
	var scanner *bufio.Scanner

	args := ctx.Args()
	filePaths := make([]string, 0, args.Len())
	for i := 0; i < args.Len(); i++ {
		filePath := args.Get(i)
		if filePath == "-" {
			scanner = bufio.NewScanner(os.Stdin)
			continue
		}
		filePaths = append(filePaths, filePath)
	}

	for _, filePath := range filePaths {
		sf.processOne(ctx.Context, filePath)
	}

	if scanner != nil {
		for scanner.Scan() {
			sf.processOne(ctx.Context, scanner.Text())
		}
		err = scanner.Err()
		if err != nil {
			return
		}
	}

	return
}

func (sf *storeFile) logger() *zap.Logger {
	if sf.publisher.Logger == nil {
		return zap.NewNop()
	}
	return sf.publisher.Logger
}

func (sf *storeFile) processOne(ctx context.Context, filePath string) {
	f, err := os.Open(filePath)
	if err != nil {
		sf.logger().Error("open", zap.String("file", filePath), zap.Error(err))
		return
	}
	defer func() {
		err = f.Close()
		if err != nil {
			sf.logger().Error("close", zap.String("file", filePath), zap.Error(err))
			return
		}
	}()

	props := propertiesOf(filePath)
	res, err := sf.publisher.Publish(ctx, service.PublishRequest{
		Site:       sf.site,
		Path:       path.Join(sf.prefix, filepath.Base(filePath)),
		Properties: &props,
	}, f)
	if err != nil {
		sf.logger().Error("publish", zap.String("file", filePath), zap.Error(err))
	}
	if res != nil {
		jsonErr := sf.jsonOut.Encode(res)
		if jsonErr != nil {
			sf.logger().Error("encode", zap.Error(jsonErr))
		}
	}
}

// propertiesOf guesses content properties from the file extension.
func propertiesOf(filePath string) (props types.ResourceProperties) {
	mediaType, params, err := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(filePath)))
	if err != nil {
		return
	}
	props.MimeType = mediaType
	props.Charset = params["charset"]
	return
}
