package null

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pencil-metrics/pencil"
)

// BackendName is the name of this backend.
const BackendName = "null"

// client represents a discarding backend.
type client struct{}

// NewClientFromViper constructs a null backend.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (pencil.Backend, error) {
	return NewClient()
}

// NewClient constructs a client object.
func NewClient() (pencil.Backend, error) {
	return client{}, nil
}

// Send discards the payload.
func (client client) Send(ctx context.Context, payload []byte) error {
	return nil
}

// Name returns the name of the backend.
func (client client) Name() string {
	return BackendName
}
