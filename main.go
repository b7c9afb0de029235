package main

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/bbars/chunkgate/commands"
	"github.com/bbars/chunkgate/ctxutil"
	"github.com/bbars/chunkgate/migrations"
	"github.com/bbars/chunkgate/service"
	"github.com/bbars/chunkgate/service/repository"
	"github.com/bbars/chunkgate/service/storage"
	"github.com/bbars/chunkgate/utils"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const AppEnvPrefix = commands.AppEnvPrefix

var (
	app    *cli.App
	logger *zap.Logger
)

func init() {
	app = &cli.App{
		Name:        os.Args[0],
		Usage:       "",
		Description: "Read gateway for chunked content-addressed resources.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "Data source name (only sqlite3 is supported for now). Example: 'sqlite3:./._storage/chunkgate.db?_journal=TRUNCATE'.",
				EnvVars: []string{AppEnvPrefix + "DSN"},
			},
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "Directory to store chunk files. Example: './storage'.",
				EnvVars: []string{AppEnvPrefix + "DIR"},
			},
			&cli.UintFlag{
				Name:    "path-depth",
				Usage:   "Maximum directory tree depth.",
				Value:   2,
				EnvVars: []string{AppEnvPrefix + "PATH_DEPTH"},
			},
			&cli.UintFlag{
				Name:    "dir-perm",
				Usage:   "Permission flags for new directories within a tree.",
				Value:   0755,
				EnvVars: []string{AppEnvPrefix + "DIR_PERM"},
			},
			&cli.UintFlag{
				Name:    "file-perm",
				Usage:   "Permission flags for new files within a tree.",
				Value:   0644,
				EnvVars: []string{AppEnvPrefix + "FILE_PERM"},
			},
			&cli.StringFlag{
				Name:    "s3-bucket",
				Usage:   "Keep chunks in this S3 bucket instead of a directory.",
				EnvVars: []string{AppEnvPrefix + "S3_BUCKET"},
			},
			&cli.StringFlag{
				Name:    "s3-prefix",
				Usage:   "Object key prefix for chunks.",
				EnvVars: []string{AppEnvPrefix + "S3_PREFIX"},
			},
			&cli.StringFlag{
				Name:    "s3-region",
				Value:   "us-east-1",
				EnvVars: []string{AppEnvPrefix + "S3_REGION"},
			},
			&cli.StringFlag{
				Name:    "s3-endpoint",
				Usage:   "Custom endpoint of an S3 compatible store, enables path style addressing.",
				EnvVars: []string{AppEnvPrefix + "S3_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "s3-access-key-id",
				EnvVars: []string{AppEnvPrefix + "S3_ACCESS_KEY_ID"},
			},
			&cli.StringFlag{
				Name:    "s3-secret-access-key",
				EnvVars: []string{AppEnvPrefix + "S3_SECRET_ACCESS_KEY"},
			},
			&cli.StringFlag{
				Name:    "max-body-size",
				Usage:   "Size limit of an assembled GET body, '0' disables it. Example: '64MiB'.",
				Value:   "64MiB",
				EnvVars: []string{AppEnvPrefix + "MAX_BODY_SIZE"},
			},
			&cli.StringFlag{
				Name:    "chunk-size",
				Usage:   "Chunk size for published content.",
				Value:   "256KiB",
				EnvVars: []string{AppEnvPrefix + "CHUNK_SIZE"},
			},
			&cli.StringFlag{
				Name:    "max-size",
				Usage:   "Size limit of published content, '0' disables it.",
				Value:   "0",
				EnvVars: []string{AppEnvPrefix + "MAX_SIZE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{AppEnvPrefix + "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Write logs to a rotated file instead of stderr.",
				EnvVars: []string{AppEnvPrefix + "LOG_FILE"},
			},
			&cli.IntFlag{
				Name:    "log-max-size-mb",
				Value:   100,
				EnvVars: []string{AppEnvPrefix + "LOG_MAX_SIZE_MB"},
			},
			&cli.IntFlag{
				Name:    "log-max-backups",
				Value:   5,
				EnvVars: []string{AppEnvPrefix + "LOG_MAX_BACKUPS"},
			},
			&cli.IntFlag{
				Name:    "log-max-age-days",
				Value:   30,
				EnvVars: []string{AppEnvPrefix + "LOG_MAX_AGE_DAYS"},
			},
			&cli.BoolFlag{
				Name:    "log-compress",
				EnvVars: []string{AppEnvPrefix + "LOG_COMPRESS"},
			},
		},
		Commands: []*cli.Command{
			commands.NewMigrateCommand(initRepo),
			commands.NewHttpCommand(initGateway),
			commands.NewFetchCommand(initGateway, initLogger),
			commands.NewDefineCommand(initPublisher),
			commands.NewStoreFilesCommand(initPublisher),
			commands.NewStorePipeCommand(initPublisher),
		},
	}
	app.Setup()
}

func initLogger(ctx *cli.Context) (l *zap.Logger, err error) {
	if logger != nil {
		l = logger
		return
	}
	l, err = utils.NewLogger(utils.LoggerConfig{
		Level:      ctx.String("log-level"),
		File:       ctx.String("log-file"),
		MaxSizeMb:  ctx.Int("log-max-size-mb"),
		MaxBackups: ctx.Int("log-max-backups"),
		MaxAgeDays: ctx.Int("log-max-age-days"),
		Compress:   ctx.Bool("log-compress"),
		Debug:      ctxutil.IsDebug(ctx.Context),
	})
	if err != nil {
		err = errors.Wrap(err, "unable to init logger")
		return
	}
	logger = l
	zap.ReplaceGlobals(logger)
	return
}

func initRepo(ctx *cli.Context) (repo repository.Repository, err error) {
	dsn := ctx.String("dsn")
	if dsn == "" {
		err = errors.New("dsn flag is required")
		return
	}
	drvDsn := strings.SplitN(dsn, ":", 2)
	if len(drvDsn) == 1 {
		drvDsn = []string{
			"sqlite3",
			drvDsn[0],
		}
	}

	db, err := sql.Open(drvDsn[0], drvDsn[1])
	if err != nil {
		err = errors.Wrap(err, "unable to connect to db")
		return
	}
	repo = repository.NewSqlite(db, migrations.FS)

	return
}

func initStorage(ctx *cli.Context) (chunkStorage storage.Storage, err error) {
	if bucket := ctx.String("s3-bucket"); bucket != "" {
		chunkStorage, err = storage.NewS3Storage(ctx.Context, storage.S3Config{
			Bucket:          bucket,
			Prefix:          ctx.String("s3-prefix"),
			Region:          ctx.String("s3-region"),
			Endpoint:        ctx.String("s3-endpoint"),
			AccessKeyID:     ctx.String("s3-access-key-id"),
			SecretAccessKey: ctx.String("s3-secret-access-key"),
		})
		if err != nil {
			err = errors.Wrap(err, "unable to init s3 storage")
		}
		return
	}

	if ctx.String("dir") == "" {
		err = errors.New("either dir or s3-bucket flag is required")
		return
	}
	chunkStorage = &storage.DirStorage{
		Dir:       ctx.String("dir"),
		PathDepth: uint8(ctx.Uint("path-depth")),
		DirPerm:   os.FileMode(ctx.Uint("dir-perm")),
		FilePerm:  os.FileMode(ctx.Uint("file-perm")),
	}
	return
}

func sizeFlag(ctx *cli.Context, name string) (size int64, err error) {
	size, err = units.RAMInBytes(ctx.String(name))
	if err != nil {
		err = errors.Wrapf(err, "invalid value for %s flag", name)
		return
	}
	return
}

func initGateway(ctx *cli.Context) (gateway *service.Gateway, err error) {
	l, err := initLogger(ctx)
	if err != nil {
		return
	}
	maxBodySize, err := sizeFlag(ctx, "max-body-size")
	if err != nil {
		return
	}
	repo, err := initRepo(ctx)
	if err != nil {
		err = errors.Wrap(err, "unable to init site repo")
		return
	}
	chunkStorage, err := initStorage(ctx)
	if err != nil {
		return
	}

	gateway = &service.Gateway{
		Sites:   repo,
		Storage: chunkStorage,
		Config: service.GatewayConfig{
			MaxBodySize: maxBodySize,
		},
		Logger: l,
	}
	return
}

func initPublisher(ctx *cli.Context) (publisher *service.Publisher, err error) {
	l, err := initLogger(ctx)
	if err != nil {
		return
	}
	chunkSize, err := sizeFlag(ctx, "chunk-size")
	if err != nil {
		return
	}
	maxSize, err := sizeFlag(ctx, "max-size")
	if err != nil {
		return
	}
	repo, err := initRepo(ctx)
	if err != nil {
		err = errors.Wrap(err, "unable to init site repo")
		return
	}
	chunkStorage, err := initStorage(ctx)
	if err != nil {
		return
	}

	publisher = &service.Publisher{
		Repo:    repo,
		Storage: chunkStorage,
		Config: service.PublisherConfig{
			ChunkSize: chunkSize,
			MaxSize:   maxSize,
		},
		Logger: l,
	}
	return
}

func main() {
	ctx := context.Background()
	ctx = ctxutil.SetDebugAuto(ctx)
	ctx = ctxutil.HandleInterruptSignal(ctx)

	err := app.RunContext(ctx, os.Args)
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		zap.L().Fatal("exit", zap.Error(err))
	}
}
