// Package logger provides a global logger for the application
package logger

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"go.uber.org/zap"
)

// Logger backs Sugar. It is a no-op until Init runs so library code can log
// unconditionally.
var Logger = zap.NewNop()

var zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)

type levelFlags struct {
	debug, trace, info bool
}

// levelFor resolves the starting log level. Flags beat the environment.
func levelFor(environment string, flags levelFlags) zerolog.Level {
	switch {
	case flags.debug:
		return zerolog.DebugLevel
	case flags.trace:
		return zerolog.TraceLevel
	case flags.info:
		return zerolog.InfoLevel
	case environment == "dev", environment == "test":
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}

func initLogger() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Caller().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	debug := flag.Bool("debug", false, "sets log level to debug")
	trace := flag.Bool("trace", false, "sets log level to trace")
	info := flag.Bool("info", false, "sets log level to info (default)")
	flag.Parse()

	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	switch environment {
	case "":
		environment = "prod"
	case "prod", "dev", "test":
	default:
		log.Warn().Str("environment", environment).Msg("Unknown environment, using production log level")
	}

	setLevel(levelFor(environment, levelFlags{debug: *debug, trace: *trace, info: *info}))

	zapLogger, err := newZapLogger(environment)
	if err != nil {
		log.Warn().Err(err).Msg("failed to build zap logger, keeping no-op logger")
	} else {
		Logger = zapLogger
	}

	log.Info().
		Str("environment", environment).
		Str("level", zerolog.GlobalLevel().String()).
		Msg("Logger initialized")
}

func setLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	if level <= zerolog.DebugLevel {
		zapLevel.SetLevel(zap.DebugLevel)
	} else {
		zapLevel.SetLevel(zap.InfoLevel)
	}
}

func newZapLogger(environment string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zapLevel
	return cfg.Build()
}

// Init initializes the logger with the configuration from the environment
// and command line flags.
// It sets up the global logger to use zerolog with console output.
// Any flags the caller wants parsed must be declared before Init runs.
// Example usage:
//
//	logger.Init() <- inside whichever main() function in your entrypoint
//
// Then, `go run ./cmd/detect --debug`
func Init() {
	initLogger()
}

// SetVerbose lowers the log floor to debug when the detector runs verbose, so
// per-window and per-layer records show up. A trace level set by Init is kept.
func SetVerbose(verbose bool) {
	if !verbose || zerolog.GlobalLevel() <= zerolog.DebugLevel {
		return
	}
	setLevel(zerolog.DebugLevel)
	log.Debug().Msg("Verbose detection enabled, logging at debug level")
}

// Sugar returns a sugared logger for easier use
func Sugar() *zap.SugaredLogger {
	return Logger.Sugar()
}
