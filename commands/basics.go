package commands

import (
	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/repository"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type InitGateway func(ctx *cli.Context) (gateway *service.Gateway, err error)

type InitPublisher func(ctx *cli.Context) (publisher *service.Publisher, err error)

type InitRepo func(ctx *cli.Context) (repo repository.Repository, err error)

type InitLogger func(ctx *cli.Context) (logger *zap.Logger, err error)

const AppEnvPrefix = "CHUNKGATE_"
