package statsd

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/util"
	"github.com/pencil-metrics/pencil/pkg/console"
	"github.com/pencil-metrics/pencil/pkg/healthcheck"
	"github.com/pencil-metrics/pencil/pkg/ready"
	"github.com/pencil-metrics/pencil/pkg/stats"
)

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// ListenerFactory is an indirection layer over net.Listen() for the console.
type ListenerFactory func() (net.Listener, error)

// Server encapsulates all of the parameters necessary for starting up
// the statsd server. These can either be set via command line or directly.
type Server struct {
	Backend     pencil.Backend
	BindAddress string
	// ReceiveSockets is the number of sockets bound to BindAddress, each with its own receiver.  More
	// than one requires SO_REUSEPORT.
	ReceiveSockets    int
	ManagementAddress string // empty disables the console
	FlushInterval     time.Duration
	FlushAligned      bool
	MaxBacklogBatches int
	BadLineLimiter    *rate.Limiter
	BindRetryMaxTime  time.Duration
	// ShutdownFlushTimeout bounds the final flush, which runs after the main context is done.
	ShutdownFlushTimeout time.Duration
	// Runnables are started alongside the server and stopped with it.
	Runnables []pencil.Runnable
	Logger    logrus.FieldLogger

	setupOnce  sync.Once
	buffer     *MessageBuffer
	aggregator *MetricAggregator
	backlog    *Backlog
	receiver   *DatagramReceiver
	flusher    *MetricFlusher

	startTime time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewServer creates a Server with defaults for everything but the backend.
func NewServer(backend pencil.Backend, logger logrus.FieldLogger) *Server {
	return &Server{
		Backend:              backend,
		BindAddress:          pencil.DefaultBindAddress,
		ReceiveSockets:       pencil.DefaultReceiveSockets,
		ManagementAddress:    pencil.DefaultManagementAddress,
		FlushInterval:        pencil.DefaultFlushInterval * time.Second,
		MaxBacklogBatches:    pencil.DefaultMaxBacklogBatches,
		BindRetryMaxTime:     pencil.DefaultBindRetryMaxTime,
		ShutdownFlushTimeout: pencil.DefaultShutdownFlushTimeout,
		Logger:               logger,
	}
}

// setup creates the pipeline from the configuration fields.  Fields must not change after the first call.
func (s *Server) setup() {
	s.setupOnce.Do(func() {
		s.buffer = NewMessageBuffer()
		s.aggregator = NewMetricAggregator(s.FlushInterval, s.BadLineLimiter, s.Logger.WithField("component", "aggregator"))
		s.backlog = NewBacklog(s.MaxBacklogBatches)
		s.receiver = NewDatagramReceiver(s.buffer, s.Logger.WithField("component", "receiver"))
		s.flusher = NewMetricFlusher(s.FlushInterval, s.FlushAligned, s.buffer, s.aggregator, s.backlog, s.Backend,
			s.Logger.WithField("component", "flusher"))
	})
}

// Run runs the server until context signals done or Stop is called.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithCustomSocket(ctx,
		func() (net.PacketConn, error) {
			if s.ReceiveSockets > 1 {
				return reuseport.ListenPacket("udp", s.BindAddress)
			}
			return net.ListenPacket("udp", s.BindAddress)
		},
		func() (net.Listener, error) {
			return net.Listen("tcp", s.ManagementAddress)
		},
	)
}

// RunWithCustomSocket runs the server until context signals done or Stop is called.  The metrics socket
// sockets are created using sf, once per ReceiveSockets, and the console listener using lf, unless the console is disabled.  A final flush
// runs before it returns, so the last interval is not lost.  A Backend that is an io.Closer is closed
// after that flush.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory, lf ListenerFactory) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	clck := clock.FromContext(ctx)
	statser := stats.FromContext(ctx)
	s.startTime = clck.Now()
	s.setup()
	s.aggregator.SetStatser(statser)

	bf := util.NewBackoffFactory(2, s.BindRetryMaxTime, 100*time.Millisecond, 0)

	// 1. Open sockets
	socketCount := s.ReceiveSockets
	if socketCount < 1 {
		socketCount = 1
	}
	sockets := make([]net.PacketConn, 0, socketCount)
	defer func() {
		// Receive returns once the socket is closed, they are normally closed already by then.
		for _, c := range sockets {
			_ = c.Close()
		}
	}()
	for i := 0; i < socketCount; i++ {
		var c net.PacketConn
		err := util.RetryOpen(ctx, bf, s.Logger, "metrics socket", func() error {
			var err error
			c, err = sf()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %v", s.BindAddress, err)
		}
		sockets = append(sockets, c)
	}

	var l net.Listener
	if s.ManagementAddress != "" {
		err := util.RetryOpen(ctx, bf, s.Logger, "console listener", func() error {
			var err error
			l, err = lf()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %v", s.ManagementAddress, err)
		}
	}

	s.Logger.WithFields(logrus.Fields{
		"address":        sockets[0].LocalAddr().String(),
		"sockets":        socketCount,
		"flush-interval": s.FlushInterval,
		"backend":        s.Backend.Name(),
	}).Info("Pencil server started")
	ready.SignalReady(ctx)

	// 2. Start everything
	var wg wait.Group
	wg.StartWithContext(ctx, s.flusher.Run)
	for _, c := range sockets {
		c := c
		wg.Start(func() {
			if err := s.receiver.Receive(ctx, c); err != nil {
				s.Logger.WithError(err).Error("Receiver failed")
				cancel()
			}
		})
	}
	wg.Start(func() {
		<-ctx.Done()
		// This makes the receivers error out and stop
		for _, c := range sockets {
			if err := c.Close(); err != nil {
				s.Logger.WithError(err).Warn("Error closing socket")
			}
		}
	})
	if l != nil {
		cons := console.New(s, s.Logger.WithField("component", "console"))
		wg.Start(func() {
			if err := cons.Serve(ctx, l); err != nil {
				s.Logger.WithError(err).Error("Console failed")
			}
		})
	}
	for _, runnable := range s.Runnables {
		wg.StartWithContext(ctx, runnable)
	}

	// 3. Listen until done
	<-ctx.Done()
	wg.Wait()

	// 4. Deliver what is left with a fresh context, the main one is already cancelled.
	s.Logger.Info("Running final flush")
	flushCtx, flushCancel := context.WithTimeout(context.Background(), s.ShutdownFlushTimeout)
	defer flushCancel()
	flushCtx = stats.NewContext(clock.Context(flushCtx, clck), statser)
	s.flusher.Flush(flushCtx, clck.Now())
	if n := s.backlog.Len(); n > 0 {
		s.Logger.WithField("batches", n).Warn("Undelivered reports lost on shutdown")
	}
	if closer, ok := s.Backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.Logger.WithError(err).Warn("Error closing backend")
		}
	}
	s.Logger.Info("Pencil server stopped")
	return nil
}

// Stop asks a running server to shut down.  It does not wait for it.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// StartTime returns when the server was started.
func (s *Server) StartTime() time.Time {
	return s.startTime
}

// RequestCount returns the number of messages handed to the aggregator so far.
func (s *Server) RequestCount() uint64 {
	s.setup()
	return s.flusher.GetStats().Requests
}

// Storage returns the raw messages waiting for the next flush.
func (s *Server) Storage() []string {
	s.setup()
	return s.buffer.Snapshot()
}

// Counters returns the current counter accumulators.
func (s *Server) Counters() map[string]float64 {
	s.setup()
	return s.aggregator.Counters()
}

// Gauges returns the last seen gauge values.
func (s *Server) Gauges() map[string]string {
	s.setup()
	return s.aggregator.Gauges()
}

// Timers returns the timer samples of the current interval.
func (s *Server) Timers() map[string][]float64 {
	s.setup()
	return s.aggregator.Timers()
}

// Stats returns an operational summary.
func (s *Server) Stats() console.Stats {
	s.setup()
	as := s.aggregator.GetStats()
	fs := s.flusher.GetStats()
	return console.Stats{
		Processed:       as.Processed,
		BadLines:        as.BadLines,
		PacketsReceived: s.receiver.GetStats().PacketsReceived,
		Buffered:        s.buffer.Len(),
		BacklogBatches:  s.backlog.Len(),
		BacklogBytes:    s.backlog.Size(),
		DroppedBatches:  s.backlog.Dropped(),
		FlushState:      fs.State,
		SkippedFlushes:  fs.SkippedFlushes,
		LastFlush:       fs.LastFlush,
		LastFlushError:  fs.LastFlushError,
	}
}

// ClearBacklog discards every undelivered report.
func (s *Server) ClearBacklog() int {
	s.setup()
	n := s.backlog.Clear()
	if n > 0 {
		s.Logger.WithField("batches", n).Warn("Backlog cleared from the console")
	}
	return n
}

// DeliveryStatus reports the backend and the undelivered reports.
func (s *Server) DeliveryStatus() healthcheck.DeliveryStatus {
	s.setup()
	fs := s.flusher.GetStats()
	return healthcheck.DeliveryStatus{
		Backend:        s.Backend.Name(),
		PendingReports: s.backlog.Len(),
		PendingBytes:   s.backlog.Size(),
		LastDelivery:   fs.LastFlush,
		LastFailure:    fs.LastFlushError,
	}
}

// HealthChecks reports the flusher state.  Being able to answer at all is the check.
func (s *Server) HealthChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{
		func() (string, healthcheck.HealthyStatus) {
			s.setup()
			return "flusher " + s.flusher.GetStats().State, healthcheck.Healthy
		},
	}
}

// DeepChecks reports whether the backend accepted the most recent delivery attempt.
func (s *Server) DeepChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{
		func() (string, healthcheck.HealthyStatus) {
			s.setup()
			fs := s.flusher.GetStats()
			if fs.LastFlushError.After(fs.LastFlush) {
				return fmt.Sprintf("backend %s rejected the last delivery at %s", s.Backend.Name(), fs.LastFlushError.Format(time.RFC3339)), healthcheck.Unhealthy
			}
			return fmt.Sprintf("backend %s accepting, %d reports pending", s.Backend.Name(), s.backlog.Len()), healthcheck.Healthy
		},
	}
}
