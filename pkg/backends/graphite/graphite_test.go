package graphite

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/fixtures"
)

func TestSendWritesPayloadOverFreshConnection(t *testing.T) {
	t.Parallel()
	sink := fixtures.NewTCPSink(t)
	cl, err := NewClient(sink.Addr, time.Second, time.Second, fixtures.NewTestLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cl.Send(ctx, []byte("a 1 1234\n")))
	require.NoError(t, cl.Send(ctx, []byte("b 2 1234\nc 3 1234\n")))

	require.Eventually(t, func() bool {
		return len(sink.Received()) == 2
	}, 5*time.Second, time.Millisecond)
	assert.ElementsMatch(t, []string{"a 1 1234\n", "b 2 1234\nc 3 1234\n"}, sink.Received())
}

func TestSendFailsWhenNothingListens(t *testing.T) {
	t.Parallel()
	cl, err := NewClient(fixtures.ClosedAddress(t), time.Second, time.Second, fixtures.NewTestLogger(t))
	require.NoError(t, err)
	err = cl.Send(context.Background(), []byte("a 1 1234\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestSendHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	sink := fixtures.NewTCPSink(t)
	cl, err := NewClient(sink.Addr, time.Second, time.Second, fixtures.NewTestLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, cl.Send(ctx, []byte("a 1 1234\n")))
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()
	logger := fixtures.NewTestLogger(t)
	_, err := NewClient("", time.Second, time.Second, logger)
	assert.Error(t, err)
	_, err = NewClient("127.0.0.1:2003", 0, time.Second, logger)
	assert.Error(t, err)
	_, err = NewClient("127.0.0.1:2003", time.Second, -time.Second, logger)
	assert.Error(t, err)
}

func TestNewClientFromViper(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set(pencil.ParamGraphiteAddress, "10.0.0.1:2003")
	v.Set("graphite", map[string]interface{}{
		"write-timeout": "2s",
	})

	b, err := NewClientFromViper(v, fixtures.NewTestLogger(t))
	require.NoError(t, err)
	cl := b.(*Client)
	assert.Equal(t, "10.0.0.1:2003", cl.address)
	assert.Equal(t, DefaultDialTimeout, cl.dialTimeout)
	assert.Equal(t, 2*time.Second, cl.writeTimeout)
	assert.Equal(t, BackendName, cl.Name())
}
