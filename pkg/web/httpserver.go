package web

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/util"
	"github.com/pencil-metrics/pencil/pkg/healthcheck"
	"github.com/pencil-metrics/pencil/pkg/ready"
)

// HttpServer serves health checks, internal metrics and optional debugging endpoints.
type HttpServer struct {
	logger  logrus.FieldLogger
	address string
	Router  *mux.Router

	mu       sync.Mutex
	listener net.Listener
}

type route struct {
	path    string
	handler http.Handler
	method  string
	name    string
}

var done = struct{}{}

// NewHttpServerFromViper creates the server configured by the web-address parameter and the "web"
// section, or returns nil if web-address is empty.
func NewHttpServerFromViper(
	v *viper.Viper,
	logger logrus.FieldLogger,
	gatherer prometheus.Gatherer,
	healthChecks []healthcheck.HealthcheckFunc,
	deepChecks []healthcheck.HealthcheckFunc,
	delivery healthcheck.DeliveryStatusProvider,
) (*HttpServer, error) {
	address := v.GetString(pencil.ParamWebAddress)
	if address == "" {
		return nil, nil
	}
	vSub := util.GetSubViper(v, "web")
	vSub.SetDefault("enable-prof", false)
	vSub.SetDefault("enable-expvar", true)

	return NewHttpServer(
		logger.WithField("component", "web"),
		address,
		gatherer,
		healthChecks,
		deepChecks,
		delivery,
		vSub.GetBool("enable-prof"),
		vSub.GetBool("enable-expvar"),
	)
}

// NewHttpServer creates a server.  /healthcheck, /deepcheck and /metrics are always present.  When
// delivery is not nil, /deepcheck includes its status.
func NewHttpServer(
	logger logrus.FieldLogger,
	address string,
	gatherer prometheus.Gatherer,
	healthChecks []healthcheck.HealthcheckFunc,
	deepChecks []healthcheck.HealthcheckFunc,
	delivery healthcheck.DeliveryStatusProvider,
	enableProf,
	enableExpVar bool,
) (*HttpServer, error) {
	server := &HttpServer{
		logger:  logger,
		address: address,
	}

	hc := &healthChecker{
		logger:       logger,
		healthChecks: healthChecks,
		deepChecks:   deepChecks,
		delivery:     delivery,
	}
	routes := []route{
		{path: "/healthcheck", handler: http.HandlerFunc(hc.healthCheck), method: "GET", name: "healthcheck_get"},
		{path: "/deepcheck", handler: http.HandlerFunc(hc.deepCheck), method: "GET", name: "deepcheck_get"},
		{path: "/metrics", handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), method: "GET", name: "metrics_get"},
	}

	if enableProf {
		profiler := &traceProfiler{}
		routes = append(routes,
			route{path: "/memprof", handler: http.HandlerFunc(profiler.MemProf), method: "POST", name: "profmem_post"},
			route{path: "/pprof", handler: http.HandlerFunc(profiler.PProf), method: "POST", name: "profpprof_post"},
			route{path: "/trace", handler: http.HandlerFunc(profiler.Trace), method: "POST", name: "proftrace_post"},
		)
	}

	if enableExpVar {
		routes = append(routes,
			route{path: "/expvar", handler: expvar.Handler(), method: "GET", name: "expvar_get"},
		)
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":       address,
		"enable-pprof":  enableProf,
		"enable-expvar": enableExpVar,
	}).Info("Created server")

	return server, nil
}

func (hs *HttpServer) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("not found"))
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.Handle(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (hs *HttpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"srcip": strings.Split(req.RemoteAddr, ":")[0],
			"path":  req.URL.Path,
		}
		if route := mux.CurrentRoute(req); route == nil {
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		if source := req.Header.Get("X-Forwarded-For"); source != "" {
			logFields["forwarded_for"] = source
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		dur := time.Since(start)

		logFields["duration"] = float64(dur) / float64(time.Millisecond)
		hs.logger.WithFields(logFields).Debug("request")
	})
}

// Addr returns the address the server is listening on, or nil before it started.
func (hs *HttpServer) Addr() net.Addr {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.listener == nil {
		return nil
	}
	return hs.listener.Addr()
}

// Run serves until ctx is done.
func (hs *HttpServer) Run(ctx context.Context) {
	l, err := net.Listen("tcp", hs.address)
	if err != nil {
		hs.logger.WithError(err).Error("web server failed to listen")
		ready.SignalReady(ctx)
		return
	}
	hs.mu.Lock()
	hs.listener = l
	hs.mu.Unlock()

	server := &http.Server{
		Handler: hs.Router,
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	hs.logger.WithField("address", l.Addr().String()).Info("listening")
	ready.SignalReady(ctx)

	err = server.Serve(l)
	if err != http.ErrServerClosed {
		hs.logger.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections
	select {
	case <-chStopped:
		// happy
	case <-time.After(6 * time.Second):
		hs.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.  There is no guarantee that it will actually signal, if the server
// does not shutdown.
func (hs *HttpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	hs.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(timeoutCtx)
	if err != nil {
		hs.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}
