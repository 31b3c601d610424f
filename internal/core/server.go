// Package core owns the HTTP server lifecycle, including the graceful
// listener reboot when the admin changes the bind address.
package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/event"
	"github.com/awsl-project/gproxy/internal/handler"
)

// JoinHostPort renders a bind address.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Components are the handlers the server mounts.
type Components struct {
	Proxy   http.Handler
	Admin   http.Handler
	EventWS *event.WebSocketSink
}

// Server runs the listener and reboots it when a new bind address is
// published on BindChanged.
type Server struct {
	Addr        string
	Components  *Components
	BindChanged <-chan string

	handler http.Handler
}

func NewServer(addr string, components *Components, bindChanged <-chan string) *Server {
	s := &Server{Addr: addr, Components: components, BindChanged: bindChanged}
	s.handler = handler.LoggingMiddleware(s.routes())
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/admin/", s.Components.Admin)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.Components.EventWS != nil {
		mux.HandleFunc("/ws", s.Components.EventWS.HandleWebSocket)
	}
	// Everything else is provider traffic: /:provider/v1/... etc.
	mux.Handle("/", s.Components.Proxy)
	return mux
}

// Run serves until ctx is done, reopening the listener whenever a new
// bind address arrives.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	for {
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           s.handler,
			ReadHeaderTimeout: 30 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.WithField("addr", addr).Info("listening")
			serveErr <- httpServer.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
			return nil
		case newAddr := <-s.BindChanged:
			log.WithFields(log.Fields{"from": addr, "to": newAddr}).Info("rebooting listener")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("graceful shutdown failed, forcing close")
				_ = httpServer.Close()
			}
			cancel()
			addr = newAddr
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				continue
			}
			return err
		}
	}
}
