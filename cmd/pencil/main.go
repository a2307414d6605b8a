package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/util"
	"github.com/pencil-metrics/pencil/pkg/backends"
	"github.com/pencil-metrics/pencil/pkg/healthcheck"
	"github.com/pencil-metrics/pencil/pkg/stats"
	"github.com/pencil-metrics/pencil/pkg/statsd"
	"github.com/pencil-metrics/pencil/pkg/web"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"
	// ParamStatserType selects where internal metrics go.
	ParamStatserType = "statser-type"
)

// Statser types.
const (
	StatserPrometheus = "prometheus"
	StatserLogging    = "logging"
	StatserNull       = "null"
)

func main() {
	v, version, err := setupConfiguration(os.Args[0], os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logger, closer, err := newLogger(v)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
	}).Info("Starting server")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	statser, err := newStatser(v, logger, registry)
	if err != nil {
		return err
	}

	s, err := constructServer(v, logger, registry)
	if err != nil {
		return err
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()
	ctx = stats.NewContext(ctx, statser)

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

func constructServer(v *viper.Viper, logger logrus.FieldLogger, gatherer prometheus.Gatherer) (*statsd.Server, error) {
	var runnables []pencil.Runnable

	// Backend
	backend, err := backends.InitBackend(v.GetString(pencil.ParamBackend), v, logger)
	if err != nil {
		return nil, err
	}
	runnables = pencil.MaybeAppendRunnable(runnables, backend)

	s := statsd.NewServer(backend, logger)
	s.BindAddress = v.GetString(pencil.ParamBindAddress)
	s.ReceiveSockets = v.GetInt(pencil.ParamReceiveSockets)
	s.ManagementAddress = v.GetString(pencil.ParamManagementAddress)
	s.FlushInterval = flushInterval(v, logger)
	s.FlushAligned = v.GetBool(pencil.ParamFlushAligned)
	s.MaxBacklogBatches = v.GetInt(pencil.ParamMaxBacklogBatches)
	s.BindRetryMaxTime = v.GetDuration(pencil.ParamBindRetryMaxTime)
	if perMinute := v.GetFloat64(pencil.ParamBadLinesPerMinute); perMinute > 0 {
		s.BadLineLimiter = rate.NewLimiter(rate.Limit(perMinute/60.0), 1)
	}

	// Web server
	healthChecks, deepChecks := healthcheck.MaybeAppendHealthChecks(nil, nil, s)
	hs, err := web.NewHttpServerFromViper(v, logger, gatherer, healthChecks, deepChecks, s)
	if err != nil {
		return nil, err
	}
	if hs != nil {
		runnables = append(runnables, hs.Run)
	}

	s.Runnables = runnables
	return s, nil
}

// flushInterval returns the configured interval, falling back to the default for values that are not a
// positive number of seconds.
func flushInterval(v *viper.Viper, logger logrus.FieldLogger) time.Duration {
	seconds := v.GetInt(pencil.ParamFlushInterval)
	if seconds <= 0 {
		logger.WithField(pencil.ParamFlushInterval, v.Get(pencil.ParamFlushInterval)).
			Warnf("Invalid flush interval, using the default of %d seconds", pencil.DefaultFlushInterval)
		seconds = pencil.DefaultFlushInterval
	}
	return time.Duration(seconds) * time.Second
}

func newStatser(v *viper.Viper, logger logrus.FieldLogger, registerer prometheus.Registerer) (stats.Statser, error) {
	switch t := v.GetString(ParamStatserType); t {
	case StatserPrometheus:
		return stats.NewPrometheusStatser("pencil", registerer), nil
	case StatserLogging:
		return stats.NewLoggingStatser(logger.WithField("component", "statser")), nil
	case StatserNull:
		return stats.NewNullStatser(), nil
	default:
		return nil, fmt.Errorf("unknown statser type %q", t)
	}
}

func setupConfiguration(name string, args []string) (*viper.Viper, bool, error) {
	v := viper.New()
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet(name, pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")
	cmd.String(ParamStatserType, StatserPrometheus, "Internal metrics destination, one of prometheus, logging, null")

	pencil.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(args); err != nil {
		return nil, false, err
	}

	// The logger is not configured yet, so problems with the file go to the standard logger.
	util.ReadConfigOverlay(v, v.GetString(ParamConfigPath), pencil.LegacyParamNames, logrus.StandardLogger())

	return v, version, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the logger described by log-level, log-name, verbose and json.  An unknown level
// is logged and replaced by the default.
func newLogger(v *viper.Viper) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	var closer io.Closer = nopCloser{}

	level, levelErr := logrus.ParseLevel(v.GetString(pencil.ParamLogLevel))
	if levelErr != nil {
		level, _ = logrus.ParseLevel(pencil.DefaultLogLevel)
	}
	logger.SetLevel(level)
	if v.GetBool(ParamVerbose) {
		logger.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if name := v.GetString(pencil.ParamLogName); name != "" {
		f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %v", err)
		}
		logger.SetOutput(f)
		closer = f
	}
	if levelErr != nil {
		logger.WithError(levelErr).Warnf("Invalid %s, using %q", pencil.ParamLogLevel, pencil.DefaultLogLevel)
	}
	return logger, closer, nil
}
