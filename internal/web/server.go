// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/hashfs"
	"golang.org/x/net/netutil"

	"go.astrophena.name/preview/internal/logger"
)

// InternalPrefix is the URL path prefix under which [ListenAndServe] registers
// its own routes. It starts with a dot so that it doesn't shadow files of a
// served site.
const InternalPrefix = "/.preview/"

// ListenAndServeConfig is used to configure the HTTP server started by
// [ListenAndServe].
//
// All fields of ListenAndServeConfig can't be modified after [ListenAndServe]
// is called.
type ListenAndServeConfig struct {
	// Addr is a network address to listen on (in the form of "host:port").
	Addr string
	// Mux is a http.ServeMux to serve.
	Mux *http.ServeMux
	// Logf specifies a logger to use. If nil, log.Printf is used.
	Logf logger.Logf
	// LogRequests enables the access log (see AccessLog).
	LogRequests bool
	// MaxConns limits the number of simultaneously accepted connections.
	// Further connections wait in the listen backlog. Zero means no limit.
	MaxConns int
	// DisableKeepAlives makes the server close every connection after one
	// request.
	DisableKeepAlives bool
	// ShutdownTimeout bounds graceful shutdown. Zero means 30 seconds.
	ShutdownTimeout time.Duration
	// Debuggable specifies whether to register the connection list at
	// InternalPrefix + "conns".
	Debuggable bool
	// Ready, if not nil, is called with the bound address once the server
	// accepts connections.
	Ready func(addr net.Addr)
}

var (
	errNoAddr = errors.New("c.Addr is empty")
	errNilMux = errors.New("c.Mux is nil")
)

// ListenAndServe starts the HTTP server based on the provided
// [ListenAndServeConfig] and blocks until ctx is canceled or the server fails.
// Request contexts carry the values of ctx.
func ListenAndServe(ctx context.Context, c *ListenAndServeConfig) error {
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	if c.Addr == "" {
		return errNoAddr
	}
	if c.Mux == nil {
		return errNilMux
	}
	shutdownTimeout := c.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}

	l, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer l.Close()
	c.Logf("Listening on %s...", l.Addr().String())
	if c.MaxConns > 0 {
		l = netutil.LimitListener(l, c.MaxConns)
	}

	var handler http.Handler = c.Mux
	if c.LogRequests {
		handler = AccessLog(c.Logf, handler)
	}

	baseCtx := context.WithoutCancel(ctx)
	s := &http.Server{
		ErrorLog:    log.New(c.Logf, "", 0),
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	if c.DisableKeepAlives {
		s.SetKeepAlivesEnabled(false)
	}
	initInternalRoutes(c, s)

	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := s.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if c.Ready != nil {
		c.Ready(l.Addr())
	}

	select {
	case err := <-errCh:
		<-done
		return err
	case <-ctx.Done():
		c.Logf("Gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			s.Close()
			<-done
			return fmt.Errorf("shutdown: %w", err)
		}
		<-done
	}

	return nil
}

//go:embed static
var embedFS embed.FS

// StaticFS is a [fs.FS] that contains static resources served on
// InternalPrefix + "static/" by [ListenAndServe] servers.
var StaticFS = hashfs.NewFS(embedFS)

// staticPath returns the fingerprinted URL path of the static resource name
// (relative to the static directory).
func staticPath(name string) string {
	return InternalPrefix + StaticFS.HashName("static/"+name)
}

func initInternalRoutes(c *ListenAndServeConfig, s *http.Server) {
	c.Mux.Handle(InternalPrefix+"static/", http.StripPrefix(InternalPrefix[:len(InternalPrefix)-1], hashfs.FileServer(StaticFS)))
	Health(c.Mux)
	if c.Debuggable {
		c.Mux.Handle(InternalPrefix+"conns", Conns(c.Logf, s))
	}
}

// allowRead reports whether r is a GET or HEAD request. Otherwise it responds
// with [ErrMethodNotAllowed], in JSON if asJSON is set.
func allowRead(w http.ResponseWriter, r *http.Request, asJSON bool) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	err := fmt.Errorf("%s: %w", r.Method, ErrMethodNotAllowed)
	if asJSON {
		RespondJSONError(w, r, err)
	} else {
		RespondError(w, r, err)
	}
	return false
}
