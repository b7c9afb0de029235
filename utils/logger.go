package utils

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string

	// File enables rotated file output instead of stderr.
	File       string
	MaxSizeMb  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	Debug bool
}

func NewLogger(conf LoggerConfig) (logger *zap.Logger, err error) {
	level := zapcore.InfoLevel
	if conf.Level != "" {
		level, err = zapcore.ParseLevel(conf.Level)
		if err != nil {
			err = errors.Wrapf(err, "parse log level %+q", conf.Level)
			return
		}
	}
	if conf.Debug {
		level = zapcore.DebugLevel
	}

	var out io.Writer = os.Stderr
	if conf.File != "" {
		out = &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSizeMb,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   conf.Compress,
		}
	}

	logger = NewLoggerTo(out, level)
	return
}

func NewLoggerTo(out io.Writer, level zapcore.Level) *zap.Logger {
	encoderConf := zap.NewProductionEncoderConfig()
	encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConf),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core)
}
