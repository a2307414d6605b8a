package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "redis"
	// DefaultAddress is the default address of the Redis server.
	DefaultAddress = "127.0.0.1:6379"
	// DefaultKey is the default list the reports are pushed to.
	DefaultKey = "pencil:history"
	// DefaultHistoryDepth is the default number of reports kept in the list.
	DefaultHistoryDepth = 9600
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
)

// Client pushes each payload onto a Redis list, newest first, and trims the list to a fixed depth.
type Client struct {
	redisClient  *redis.Client
	key          string
	historyDepth int64
	logger       logrus.FieldLogger
}

// NewClientFromViper constructs a Redis backend.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (pencil.Backend, error) {
	r := util.GetSubViper(v, "redis")
	r.SetDefault("address", DefaultAddress)
	r.SetDefault("password", "")
	r.SetDefault("db", 0)
	r.SetDefault("key", DefaultKey)
	r.SetDefault("history-depth", DefaultHistoryDepth)
	r.SetDefault("dial-timeout", DefaultDialTimeout)
	r.SetDefault("write-timeout", DefaultWriteTimeout)
	return NewClient(
		&redis.Options{
			Addr:         r.GetString("address"),
			Password:     r.GetString("password"),
			DB:           r.GetInt("db"),
			DialTimeout:  r.GetDuration("dial-timeout"),
			WriteTimeout: r.GetDuration("write-timeout"),
			MaxRetries:   0, // the flusher retries on the next flush
		},
		r.GetString("key"),
		r.GetInt64("history-depth"),
		logger,
	)
}

// NewClient constructs a Redis backend.
func NewClient(options *redis.Options, key string, historyDepth int64, logger logrus.FieldLogger) (*Client, error) {
	if options.Addr == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if key == "" {
		return nil, fmt.Errorf("[%s] key is required", BackendName)
	}
	if historyDepth <= 0 {
		return nil, fmt.Errorf("[%s] history-depth should be positive", BackendName)
	}

	logger.WithFields(logrus.Fields{
		"address":       options.Addr,
		"key":           key,
		"history-depth": historyDepth,
	}).Info("created backend")

	return &Client{
		redisClient:  redis.NewClient(options),
		key:          key,
		historyDepth: historyDepth,
		logger:       logger,
	}, nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

// Send pushes payload as a single list element and trims the history.
func (client *Client) Send(ctx context.Context, payload []byte) error {
	rc := client.redisClient.WithContext(ctx)
	if err := rc.LPush(client.key, payload).Err(); err != nil {
		return fmt.Errorf("[%s] LPUSH failed: %v", BackendName, err)
	}
	// A failed trim leaves the report delivered, so it is not worth a resend.
	if err := rc.LTrim(client.key, 0, client.historyDepth-1).Err(); err != nil {
		client.logger.WithError(err).Warn("LTRIM failed")
	}
	return nil
}

// Close releases the connection pool.  The server calls it after the final flush.
func (client *Client) Close() error {
	return client.redisClient.Close()
}
