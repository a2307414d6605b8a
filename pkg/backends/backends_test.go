package backends

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/fixtures"
)

func TestInitBackendKnownNames(t *testing.T) {
	t.Parallel()
	for name := range backends {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v := viper.New()
			v.SetDefault(pencil.ParamGraphiteAddress, pencil.DefaultGraphiteAddress)
			b, err := InitBackend(name, v, fixtures.NewTestLogger(t))
			require.NoError(t, err)
			assert.Equal(t, name, b.Name())
		})
	}
}

func TestInitBackendUnknownName(t *testing.T) {
	t.Parallel()
	_, err := InitBackend("carbon-copy", viper.New(), fixtures.NewTestLogger(t))
	assert.EqualError(t, err, `unknown backend "carbon-copy"`)

	_, err = InitBackend("", viper.New(), fixtures.NewTestLogger(t))
	assert.Error(t, err)
}

func TestInitBackendReportsConfigErrors(t *testing.T) {
	t.Parallel()
	// No graphite address anywhere.
	_, err := InitBackend("graphite", viper.New(), fixtures.NewTestLogger(t))
	assert.Error(t, err)
}
