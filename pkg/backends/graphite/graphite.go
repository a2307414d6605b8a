package graphite

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "graphite"
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
)

// Client is an object that is used to send reports to a Graphite server's plaintext TCP interface.
// Every Send uses a new connection, so a Graphite restart between flushes goes unnoticed.
type Client struct {
	address      string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	logger       logrus.FieldLogger
}

// NewClientFromViper constructs a Client object using configuration provided by Viper
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (pencil.Backend, error) {
	g := util.GetSubViper(v, "graphite")
	g.SetDefault("dial-timeout", DefaultDialTimeout)
	g.SetDefault("write-timeout", DefaultWriteTimeout)
	g.SetDefault("address", v.GetString(pencil.ParamGraphiteAddress))
	return NewClient(
		g.GetString("address"),
		g.GetDuration("dial-timeout"),
		g.GetDuration("write-timeout"),
		logger,
	)
}

// NewClient constructs a Graphite backend object.
func NewClient(address string, dialTimeout, writeTimeout time.Duration, logger logrus.FieldLogger) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if dialTimeout <= 0 {
		return nil, fmt.Errorf("[%s] dialTimeout should be positive", BackendName)
	}
	if writeTimeout < 0 {
		return nil, fmt.Errorf("[%s] writeTimeout should be non-negative", BackendName)
	}

	logger.WithFields(logrus.Fields{
		"address":       address,
		"dial-timeout":  dialTimeout,
		"write-timeout": writeTimeout,
	}).Info("created backend")

	return &Client{
		address:      address,
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
		logger:       logger,
	}, nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

// Send opens a connection, writes payload and closes the connection.  Success only means the bytes were
// handed to the kernel, Graphite does not acknowledge anything.
func (client *Client) Send(ctx context.Context, payload []byte) (retErr error) {
	dialer := net.Dialer{Timeout: client.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", client.address)
	if err != nil {
		return fmt.Errorf("[%s] failed to connect to %s: %v", BackendName, client.address, err)
	}
	defer func() {
		if err := conn.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("[%s] failed to close connection: %v", BackendName, err)
		}
	}()

	if client.writeTimeout > 0 {
		deadline := time.Now().Add(client.writeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetWriteDeadline(deadline); err != nil {
			client.logger.WithError(err).Warn("failed to set write deadline")
		}
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("[%s] failed to write %d bytes: %v", BackendName, len(payload), err)
	}
	return nil
}
