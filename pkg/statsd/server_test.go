package statsd

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/fixtures"
	"github.com/pencil-metrics/pencil/pkg/fakesocket"
	"github.com/pencil-metrics/pencil/pkg/healthcheck"
	"github.com/pencil-metrics/pencil/pkg/ready"
)

func noConsole() (net.Listener, error) {
	return nil, errors.New("console is disabled")
}

func newTestServer(t *testing.T, backend *fixtures.CapturingBackend) *Server {
	s := NewServer(backend, fixtures.NewTestLogger(t))
	s.ManagementAddress = ""
	return s
}

func runServer(ctx context.Context, t *testing.T, s *Server, conn net.PacketConn) <-chan error {
	errs := make(chan error, 1)
	go func() {
		errs <- s.RunWithCustomSocket(ctx, func() (net.PacketConn, error) {
			return conn, nil
		}, noConsole)
	}()
	return errs
}

func waitForServer(t *testing.T, errs <-chan error) {
	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerFlushesOnTick(t *testing.T) {
	t.Parallel()
	ctxTest, testDone := context.WithTimeout(context.Background(), 5*time.Second)
	defer testDone()
	ctx, clck := fixtures.NewMockClockContext(ctxTest, reportTime)

	backend := &fixtures.CapturingBackend{}
	s := newTestServer(t, backend)
	conn := fakesocket.NewFakePacketConn([]byte("foo:10|c\nbar:3|g\nbad"))
	errs := runServer(ctx, t, s, conn)

	require.Eventually(t, func() bool { return conn.Pending() == 0 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Storage()) == 3 }, 5*time.Second, time.Millisecond)

	fixtures.NextStep(ctxTest, clck)
	require.Eventually(t, func() bool { return len(backend.Payloads()) == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, "bar 3 1500000010\nfoo 1 1500000010\n", backend.Payloads()[0])

	s.Stop()
	waitForServer(t, errs)

	// Only the gauge is repeated by the final flush.
	assert.Equal(t, []string{
		"bar 3 1500000010\nfoo 1 1500000010\n",
		"bar 3 1500000010\n",
	}, backend.Payloads())
	assert.EqualValues(t, 3, s.RequestCount())
	assert.Equal(t, reportTime, s.StartTime())

	stats := s.Stats()
	assert.EqualValues(t, 2, stats.Processed)
	assert.EqualValues(t, 1, stats.BadLines)
	assert.EqualValues(t, 1, stats.PacketsReceived)
	assert.Zero(t, stats.BacklogBatches)
	assert.Equal(t, "idle", stats.FlushState)
}

func TestServerFinalFlushOnShutdown(t *testing.T) {
	t.Parallel()
	ctxTest, testDone := context.WithTimeout(context.Background(), 5*time.Second)
	defer testDone()
	ctx, _ := fixtures.NewMockClockContext(ctxTest, reportTime)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backend := &fixtures.CapturingBackend{}
	s := newTestServer(t, backend)
	conn := fakesocket.NewFakePacketConn([]byte("foo:10|c"))
	errs := runServer(ctx, t, s, conn)

	require.Eventually(t, func() bool { return conn.Pending() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	waitForServer(t, errs)

	assert.Equal(t, []string{"foo 1 1500000000\n"}, backend.Payloads())
	assert.Equal(t, map[string]float64{"foo": 0}, s.Counters())
	assert.Empty(t, s.Gauges())
	assert.Empty(t, s.Timers())
}

// closingBackend refuses to send once closed, like a pooled client.
type closingBackend struct {
	fixtures.CapturingBackend

	closeMu sync.Mutex
	closed  bool
}

func (cb *closingBackend) Run(ctx context.Context) {
	<-ctx.Done()
}

func (cb *closingBackend) Send(ctx context.Context, payload []byte) error {
	cb.closeMu.Lock()
	closed := cb.closed
	cb.closeMu.Unlock()
	if closed {
		return errors.New("client is closed")
	}
	return cb.CapturingBackend.Send(ctx, payload)
}

func (cb *closingBackend) Close() error {
	cb.closeMu.Lock()
	defer cb.closeMu.Unlock()
	cb.closed = true
	return nil
}

func (cb *closingBackend) isClosed() bool {
	cb.closeMu.Lock()
	defer cb.closeMu.Unlock()
	return cb.closed
}

func TestServerClosesBackendAfterFinalFlush(t *testing.T) {
	t.Parallel()
	ctxTest, testDone := context.WithTimeout(context.Background(), 5*time.Second)
	defer testDone()
	ctx, _ := fixtures.NewMockClockContext(ctxTest, reportTime)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backend := &closingBackend{}
	s := NewServer(backend, fixtures.NewTestLogger(t))
	s.ManagementAddress = ""
	s.Runnables = pencil.MaybeAppendRunnable(nil, backend)
	require.Len(t, s.Runnables, 1)
	conn := fakesocket.NewFakePacketConn([]byte("foo:10|c"))
	errs := runServer(ctx, t, s, conn)

	require.Eventually(t, func() bool { return len(s.Storage()) == 1 }, 5*time.Second, time.Millisecond)
	cancel()
	waitForServer(t, errs)

	assert.Equal(t, []string{"foo 1 1500000000\n"}, backend.Payloads())
	assert.Zero(t, s.Stats().BacklogBatches)
	assert.True(t, backend.isClosed())
}

func TestServerClearBacklog(t *testing.T) {
	t.Parallel()
	backend := &fixtures.CapturingBackend{}
	backend.SetError(errors.New("connection refused"))
	s := newTestServer(t, backend)
	ctx, _ := fixtures.NewMockClockContext(context.Background(), reportTime)
	s.setup()

	s.buffer.Append("foo:1|c")
	s.flusher.Flush(ctx, reportTime)
	require.Equal(t, 1, s.Stats().BacklogBatches)

	ds := s.DeliveryStatus()
	assert.Equal(t, "capturing", ds.Backend)
	assert.Equal(t, 1, ds.PendingReports)
	assert.Equal(t, len("foo 0.1 1500000000"), ds.PendingBytes)
	assert.Equal(t, reportTime, ds.LastFailure)
	assert.True(t, ds.LastDelivery.IsZero())

	assert.Equal(t, 1, s.ClearBacklog())
	assert.Zero(t, s.Stats().BacklogBatches)
	assert.Zero(t, s.Stats().BacklogBytes)

	backend.SetError(nil)
	s.flusher.Flush(ctx, reportTime.Add(10*time.Second))
	assert.Empty(t, backend.Payloads())
}

func TestServerKeepsBacklogWhileBackendIsDown(t *testing.T) {
	t.Parallel()
	ctxTest, testDone := context.WithTimeout(context.Background(), 5*time.Second)
	defer testDone()
	ctx, clck := fixtures.NewMockClockContext(ctxTest, reportTime)

	backend := &fixtures.CapturingBackend{}
	backend.SetError(errors.New("connection refused"))
	s := newTestServer(t, backend)
	conn := fakesocket.NewFakePacketConn([]byte("foo:10|c"))
	errs := runServer(ctx, t, s, conn)

	require.Eventually(t, func() bool { return conn.Pending() == 0 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Storage()) == 1 }, 5*time.Second, time.Millisecond)
	fixtures.NextStep(ctxTest, clck)
	require.Eventually(t, func() bool { return s.Stats().BacklogBatches == 1 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Stats().FlushState == "idle" }, 5*time.Second, time.Millisecond)

	backend.SetError(nil)
	conn.Queue([]byte("foo:20|c"))
	require.Eventually(t, func() bool { return len(s.Storage()) == 1 }, 5*time.Second, time.Millisecond)
	s.Stop()
	waitForServer(t, errs)

	assert.Equal(t, []string{"foo 1 1500000010\nfoo 2 1500000010\n"}, backend.Payloads())
	assert.False(t, s.Stats().LastFlushError.IsZero())
}

func TestServerFailsWhenSocketCannotBeOpened(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fixtures.CapturingBackend{})
	s.BindRetryMaxTime = 50 * time.Millisecond

	err := s.RunWithCustomSocket(context.Background(), func() (net.PacketConn, error) {
		return nil, errors.New("address already in use")
	}, noConsole)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestServerSignalsReady(t *testing.T) {
	t.Parallel()
	ctxTest, testDone := context.WithTimeout(context.Background(), 5*time.Second)
	defer testDone()

	var wgReady sync.WaitGroup
	wgReady.Add(1)
	ctx, cancel := context.WithCancel(ready.WithWaitGroup(ctxTest, &wgReady))
	defer cancel()

	s := newTestServer(t, &fixtures.CapturingBackend{})
	errs := runServer(ctx, t, s, fakesocket.NewFakePacketConn())
	wgReady.Wait()

	assert.Empty(t, s.Storage())
	assert.Equal(t, "idle", s.Stats().FlushState)
	cancel()
	waitForServer(t, errs)
}

func TestServerChecks(t *testing.T) {
	t.Parallel()
	backend := &fixtures.CapturingBackend{}
	s := newTestServer(t, backend)
	ctx, _ := fixtures.NewMockClockContext(context.Background(), reportTime)

	report, status := s.HealthChecks()[0]()
	assert.Equal(t, healthcheck.Healthy, status)
	assert.Equal(t, "flusher idle", report)

	_, status = s.DeepChecks()[0]()
	assert.Equal(t, healthcheck.Healthy, status)

	backend.SetError(errors.New("connection refused"))
	s.buffer.Append("foo:1|c")
	s.flusher.Flush(ctx, reportTime)
	report, status = s.DeepChecks()[0]()
	assert.Equal(t, healthcheck.Unhealthy, status)
	assert.Contains(t, report, "rejected the last delivery")
}

func BenchmarkServer(b *testing.B) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fixtures.CapturingBackend{}
	s := NewServer(backend, fixtures.NewTestLogger(b))
	s.ManagementAddress = ""
	s.FlushInterval = 100 * time.Millisecond

	errs := make(chan error, 1)
	go func() {
		errs <- s.RunWithCustomSocket(ctx, fakesocket.Factory, noConsole)
	}()
	time.Sleep(time.Duration(b.N) * time.Microsecond)
	cancel()
	if err := <-errs; err != nil {
		b.Fatal(err)
	}
}

func TestServerReadsFromEverySocket(t *testing.T) {
	t.Parallel()
	ctxTest, testDone := context.WithTimeout(context.Background(), 5*time.Second)
	defer testDone()
	ctx, _ := fixtures.NewMockClockContext(ctxTest, reportTime)

	backend := &fixtures.CapturingBackend{}
	s := newTestServer(t, backend)
	s.ReceiveSockets = 3

	var mu sync.Mutex
	var conns []*fakesocket.FakePacketConn
	errs := make(chan error, 1)
	go func() {
		errs <- s.RunWithCustomSocket(ctx, func() (net.PacketConn, error) {
			mu.Lock()
			defer mu.Unlock()
			conn := fakesocket.NewFakePacketConn([]byte("foo:1|c"))
			conns = append(conns, conn)
			return conn, nil
		}, noConsole)
	}()

	require.Eventually(t, func() bool { return len(s.Storage()) == 3 }, 5*time.Second, time.Millisecond)
	s.Stop()
	waitForServer(t, errs)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, conns, 3)
	assert.Equal(t, []string{"foo 0.3 1500000000\n"}, backend.Payloads())
}
