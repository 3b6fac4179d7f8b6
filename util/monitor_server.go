package util

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MonitorServer struct {
	running *sync.Mutex
	srv     *http.Server
	mux     *http.ServeMux
	srvMu   sync.RWMutex // protects srv field
	port    int
}

// NewMonitorServer builds a server on its own mux with /metrics already mounted.
// A port of 0 means details_port from the config.
func NewMonitorServer(port int) *MonitorServer {
	s := MonitorServer{
		running: &sync.Mutex{},
		srv:     &http.Server{},
		mux:     http.NewServeMux(),
		port:    port,
	}
	s.AddRawHandler("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return &s
}

func (s *MonitorServer) addr() string {
	port := s.port
	if port == 0 {
		port = Config.GetInt("details_port")
	}
	return fmt.Sprintf(":%d", port)
}

func (s *MonitorServer) Start() error {
	if !s.running.TryLock() {
		return fmt.Errorf("already running")
	} else {
		s.running.Unlock()
	}
	go func() {
		s.running.Lock()

		newSrv := &http.Server{
			Addr:              s.addr(),
			Handler:           s.mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.srvMu.Lock()
		s.srv = newSrv
		s.srvMu.Unlock()

		Logger.Info().Msgf("monitor server listening on %s", newSrv.Addr)
		if err := newSrv.ListenAndServe(); err != http.ErrServerClosed {
			Logger.Warn().Msgf("Problem loading monitor server: %v", err)
		}
		Logger.Debug().Msg("monitor server shutdown")
		s.running.Unlock()
	}()
	return nil
}

func (s *MonitorServer) AddHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(path, handler)
}

func (s *MonitorServer) AddRawHandler(path string, handler http.Handler) {
	s.mux.Handle(path, handler)
}

// Handler exposes the mux, mostly for httptest.
func (s *MonitorServer) Handler() http.Handler {
	return s.mux
}

func (s *MonitorServer) Stop(ctx context.Context) error {
	s.srvMu.RLock()
	currentSrv := s.srv
	s.srvMu.RUnlock()
	if currentSrv == nil {
		return nil
	}
	return currentSrv.Shutdown(ctx)
}

func (s *MonitorServer) Restart() {
	Logger.Debug().Msg("restarting monitor server")
	if !s.running.TryLock() { // only shutdown if running
		Logger.Debug().Msg("monitor server running, shutting it down")
		if err := s.Stop(context.TODO()); err != nil {
			Logger.Error().Msgf("Error shutting down monitor server: %v", err)
		}
	} else {
		s.running.Unlock()
	}
	Logger.Debug().Msg("waiting for shutdown")
	s.running.Lock() // when server shuts down it will unlock, so wait for unlock
	Logger.Debug().Msg("http not running - good for startup")
	s.running.Unlock()
	if err := s.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}
}

// RestartOnPortChange re-binds the server when details_port changes in the
// config file. Other config changes leave it alone.
func (s *MonitorServer) RestartOnPortChange() {
	RegisterNewConfigListener(func() {
		s.srvMu.RLock()
		bound := s.srv.Addr
		s.srvMu.RUnlock()
		if bound == s.addr() {
			return
		}
		Logger.Info().Msgf("monitor server moving from %q to %s", bound, s.addr())
		s.Restart()
	})
}
