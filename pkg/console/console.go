// Package console implements the line oriented management console served over TCP.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const welcome = "Welcome to pencil's command server. Type quit to exit."

const cmdQuit = "quit"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stats is the operational summary printed by the stats command.
type Stats struct {
	Processed       uint64    `json:"processed"`
	BadLines        uint64    `json:"bad_lines"`
	PacketsReceived uint64    `json:"packets_received"`
	Buffered        int       `json:"buffered"`
	BacklogBatches  int       `json:"backlog_batches"`
	BacklogBytes    int       `json:"backlog_bytes"`
	DroppedBatches  uint64    `json:"dropped_batches"`
	FlushState      string    `json:"flush_state"`
	SkippedFlushes  uint64    `json:"skipped_flushes"`
	LastFlush       time.Time `json:"last_flush"`
	LastFlushError  time.Time `json:"last_flush_error"`
}

// Source is the server state the console can inspect and control.
type Source interface {
	StartTime() time.Time
	RequestCount() uint64
	Storage() []string
	Counters() map[string]float64
	Gauges() map[string]string
	Timers() map[string][]float64
	Stats() Stats
	// ClearBacklog discards undelivered reports and returns how many were discarded.
	ClearBacklog() int
	// Stop asks the server to shut down.  It must not block.
	Stop()
}

// CommandFunc executes a command with the remaining words of the input line.
type CommandFunc func(args []string) (string, error)

// Console dispatches input lines to registered commands.
type Console struct {
	logger   logrus.FieldLogger
	commands map[string]CommandFunc
}

// New creates a Console with the standard commands bound to source.
func New(source Source, logger logrus.FieldLogger) *Console {
	c := &Console{
		logger:   logger,
		commands: map[string]CommandFunc{},
	}
	c.Register("storage", func(args []string) (string, error) {
		return toJSON(source.Storage())
	})
	c.Register("status", func(args []string) (string, error) {
		return fmt.Sprintf("up since %s, total requests: %d", source.StartTime().Format(time.RFC3339), source.RequestCount()), nil
	})
	c.Register("stop_server", func(args []string) (string, error) {
		source.Stop()
		return "shutting down server.", nil
	})
	c.Register("timers", func(args []string) (string, error) {
		return toJSON(source.Timers())
	})
	c.Register("gauges", func(args []string) (string, error) {
		return toJSON(source.Gauges())
	})
	c.Register("counters", func(args []string) (string, error) {
		return toJSON(source.Counters())
	})
	c.Register("stats", func(args []string) (string, error) {
		return toJSON(source.Stats())
	})
	c.Register("clear_backlog", func(args []string) (string, error) {
		return fmt.Sprintf("dropped %d pending reports.", source.ClearBacklog()), nil
	})
	c.Register("help", func(args []string) (string, error) {
		return c.usage(), nil
	})
	return c
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Register adds or replaces a command.  Names are matched lower-cased.
func (c *Console) Register(name string, fn CommandFunc) {
	c.commands[strings.ToLower(name)] = fn
}

func (c *Console) usage() string {
	names := make([]string, 0, len(c.commands)+1)
	for name := range c.commands {
		names = append(names, name)
	}
	names = append(names, cmdQuit)
	sort.Strings(names)
	return "available commands: " + strings.Join(names, ", ")
}

// Execute runs a single input line.  It returns quit=true when the client asked to disconnect, and
// an empty output for blank lines.
func (c *Console) Execute(line string) (output string, quit bool) {
	words := strings.Fields(strings.ToLower(line))
	if len(words) == 0 {
		return "", false
	}
	name, args := words[0], words[1:]
	if name == cmdQuit {
		return "", true
	}
	fn, ok := c.commands[name]
	if !ok {
		return c.usage(), false
	}
	out, err := fn(args)
	if err != nil {
		c.logger.WithError(err).WithField("command", name).Warn("Console command failed")
		return fmt.Sprintf("error: %v", err), false
	}
	return out, false
}

// Serve accepts connections on l until ctx is done, then closes l and waits for open sessions to end.
func (c *Console) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("console accept failed: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.serveConn(ctx, conn)
		}()
	}
}

func (c *Console) serveConn(ctx context.Context, conn net.Conn) {
	logger := c.logger.WithField("remote", conn.RemoteAddr().String())
	logger.Debug("New console connection")

	defer conn.Close()

	// Unblock the reader when the server stops, without cutting off a reply being written.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	if err := c.session(conn, conn, logger); err != nil {
		logger.WithError(err).Debug("Console connection ended")
	}
}

// session runs the read-execute-write loop on a single connection.
func (c *Console) session(r io.Reader, w io.Writer, logger logrus.FieldLogger) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(welcome + "\r\n"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		logger.WithField("line", line).Debug("Executing console command")
		out, quit := c.Execute(line)
		if quit {
			return nil
		}
		if _, err := bw.WriteString(out + "\r\n"); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}
