package backends

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/pkg/backends/graphite"
	"github.com/pencil-metrics/pencil/pkg/backends/null"
	"github.com/pencil-metrics/pencil/pkg/backends/redis"
)

// All known backends.
var backends = map[string]pencil.BackendFactory{
	graphite.BackendName: graphite.NewClientFromViper,
	null.BackendName:     null.NewClientFromViper,
	redis.BackendName:    redis.NewClientFromViper,
}

// GetBackend creates an instance of the named backend, or nil if
// the name is not known. The error return is only used if the named backend
// was known but failed to initialize.
func GetBackend(name string, v *viper.Viper, logger logrus.FieldLogger) (pencil.Backend, error) {
	f, found := backends[name]
	if !found {
		return nil, nil
	}
	return f(v, logger)
}

// InitBackend creates an instance of the named backend.
func InitBackend(name string, v *viper.Viper, logger logrus.FieldLogger) (pencil.Backend, error) {
	if name == "" {
		return nil, fmt.Errorf("no backend specified")
	}

	backend, err := GetBackend(name, v, logger.WithField("backend", name))
	if err != nil {
		return nil, fmt.Errorf("could not init backend %q: %v", name, err)
	}
	if backend == nil {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	logger.Infof("Initialised backend %q", name)

	return backend, nil
}
