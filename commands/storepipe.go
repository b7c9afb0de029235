package commands

import (
	"encoding/json"
	"os"

	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/types"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func NewStorePipeCommand(initPublisher InitPublisher) *cli.Command {
	sp := storePipe{
		publisher: nil,
		jsonOut:   json.NewEncoder(os.Stdout),
	}
	return &cli.Command{
		Name:   "storepipe",
		Usage:  "Publish stdin as a resource",
		Action: sp.Action,
		Before: func(ctx *cli.Context) (err error) {
			sp.publisher, err = initPublisher(ctx)
			return
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "site",
				Usage:    "Site to publish into.",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "path",
				Usage:    "Resource path.",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "append",
				Usage: "Append chunks to the existing content instead of replacing it.",
			},
			&cli.StringFlag{
				Name:    "mime-type",
				Aliases: []string{"type", "mime"},
				Usage:   "Resource mime type, stored value is kept when empty.",
			},
			&cli.StringFlag{
				Name:  "charset",
				Usage: "Resource charset.",
			},
			&cli.StringFlag{
				Name:  "encoding",
				Usage: "Resource content encoding.",
			},
			&cli.StringFlag{
				Name:  "language",
				Usage: "Resource content language.",
			},
		},
	}
}

type storePipe struct {
	publisher *service.Publisher
	jsonOut   *json.Encoder
}

func (sp *storePipe) Action(ctx *cli.Context) (err error) {
	defer func() {
		closeErr := os.Stdin.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	req := service.PublishRequest{
		Site:   ctx.String("site"),
		Path:   ctx.String("path"),
		Append: ctx.Bool("append"),
	}
	if ctx.String("mime-type") != "" {
		req.Properties = &types.ResourceProperties{
			MimeType: ctx.String("mime-type"),
			Charset:  ctx.String("charset"),
			Encoding: ctx.String("encoding"),
			Language: ctx.String("language"),
		}
	}

	res, err := sp.publisher.Publish(ctx.Context, req, os.Stdin)
	if err != nil {
		err = errors.Wrap(err, "publish stdin")
		return
	}
	err = sp.jsonOut.Encode(res)
	return
}
