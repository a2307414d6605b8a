// Package pencil contains the types shared by the aggregation server, its
// backends and the command line tools.
package pencil

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	// DefaultBindAddress is the default address on which to listen for metrics.
	DefaultBindAddress = "127.0.0.1:8125"
	// DefaultReceiveSockets is the default number of sockets receiving metrics.
	DefaultReceiveSockets = 1
	// DefaultManagementAddress is the default address of the telnet-like console.
	DefaultManagementAddress = "127.0.0.1:8126"
	// DefaultFlushInterval is the default number of seconds between flushes.
	DefaultFlushInterval = 10
	// DefaultGraphiteAddress is the default address of the Graphite plaintext listener.
	DefaultGraphiteAddress = "127.0.0.1:2003"
	// DefaultLogName is the default log file; empty means stderr.
	DefaultLogName = ""
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
	// DefaultBackend is the default backend name.
	DefaultBackend = "graphite"
	// DefaultMaxBacklogBatches is the default cap on undelivered reports. 0 means unbounded.
	DefaultMaxBacklogBatches = 0
	// DefaultBadLinesPerMinute is the default rate at which bad lines are logged. 0 disables the log.
	DefaultBadLinesPerMinute = 0.0
	// DefaultBindRetryMaxTime is how long opening a listener is retried before giving up.
	DefaultBindRetryMaxTime = 15 * time.Second
	// DefaultShutdownFlushTimeout bounds the final flush on shutdown.
	DefaultShutdownFlushTimeout = 10 * time.Second
)

const (
	// ParamBindAddress is the name of parameter with the address on which to listen for metrics.
	ParamBindAddress = "bind-address"
	// ParamReceiveSockets is the name of parameter with the number of receiving sockets.
	ParamReceiveSockets = "receive-sockets"
	// ParamManagementAddress is the name of parameter with the console address.
	ParamManagementAddress = "management-address"
	// ParamFlushInterval is the name of parameter with the flush interval in whole seconds.
	ParamFlushInterval = "flush-interval"
	// ParamFlushAligned is the name of parameter that aligns flushes to the interval boundary.
	ParamFlushAligned = "flush-aligned"
	// ParamGraphiteAddress is the name of parameter with the Graphite address.
	ParamGraphiteAddress = "graphite-address"
	// ParamLogName is the name of parameter with the log file path.
	ParamLogName = "log-name"
	// ParamLogLevel is the name of parameter with the log level.
	ParamLogLevel = "log-level"
	// ParamBackend is the name of parameter with the backend name.
	ParamBackend = "backend"
	// ParamMaxBacklogBatches is the name of parameter with the cap on undelivered reports.
	ParamMaxBacklogBatches = "max-backlog-batches"
	// ParamWebAddress is the name of parameter with the address of the http server.
	ParamWebAddress = "web-address"
	// ParamBadLinesPerMinute is the name of parameter with the number of bad lines to log per minute.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
	// ParamBindRetryMaxTime is the name of parameter with the listener retry budget.
	ParamBindRetryMaxTime = "bind-retry-max-time"
)

// LegacyParamNames maps the underscore separated settings of the original JSON
// settings file to their current names.
var LegacyParamNames = map[string]string{
	"bind_address":       ParamBindAddress,
	"bind_adress":        ParamBindAddress,
	"management_address": ParamManagementAddress,
	"flush_interval":     ParamFlushInterval,
	"graphite_address":   ParamGraphiteAddress,
	"log_name":           ParamLogName,
	"log_level":          ParamLogLevel,
}

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamBindAddress, DefaultBindAddress, "UDP address on which to listen for metrics")
	fs.Int(ParamReceiveSockets, DefaultReceiveSockets, "Number of sockets bound to the metrics address, more than one uses SO_REUSEPORT")
	fs.String(ParamManagementAddress, DefaultManagementAddress, "TCP address of the management console, empty to disable")
	fs.Int(ParamFlushInterval, DefaultFlushInterval, "Seconds between flushes to the backend")
	fs.Bool(ParamFlushAligned, false, "Align flushes to the flush interval boundary")
	fs.String(ParamGraphiteAddress, DefaultGraphiteAddress, "Address of the Graphite plaintext listener")
	fs.String(ParamLogName, DefaultLogName, "Path to the log file, empty for stderr")
	fs.String(ParamLogLevel, DefaultLogLevel, "One of debug, info, warning, error")
	fs.String(ParamBackend, DefaultBackend, "Backend to deliver reports to")
	fs.Int(ParamMaxBacklogBatches, DefaultMaxBacklogBatches, "Maximum number of undelivered reports to keep, 0 for unbounded")
	fs.String(ParamWebAddress, "", "If set, serve healthcheck and internal metrics on this address")
	fs.Float64(ParamBadLinesPerMinute, DefaultBadLinesPerMinute, "Number of bad lines to log per minute")
	fs.Duration(ParamBindRetryMaxTime, DefaultBindRetryMaxTime, "How long to retry opening listeners")
}
