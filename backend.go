package pencil

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Backend represents a downstream time-series system.
//
// Send delivers one payload. A nil error means the transport accepted every byte; there is no
// application-level acknowledgement, so the backend may still discard the data.
type Backend interface {
	// Name returns the name of the backend.
	Name() string
	// Send writes the payload to the backend. Implementations must bound the attempt in time.
	Send(ctx context.Context, payload []byte) error
}

// BackendFactory is a function that returns a Backend.
type BackendFactory func(v *viper.Viper, logger logrus.FieldLogger) (Backend, error)
