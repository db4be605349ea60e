// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/browser"

	"go.astrophena.name/preview/internal/cli"
	"go.astrophena.name/preview/internal/cli/envflag"
	"go.astrophena.name/preview/internal/restrict"
	"go.astrophena.name/preview/internal/site"
	"go.astrophena.name/preview/internal/web"
)

func main() { cli.Main(new(engine)) }

var banner = []string{
	"Warning: this is a very simple server.",
	"For development, use a live-reloading development server instead.",
	"This is here only to preview a site that is already built.",
	"Make sure you run the build first.",
}

type engine struct {
	// configuration
	addr  *string
	dir   *string
	open  *bool
	debug *bool

	// used in tests
	noServerStart bool
	openURL       func(url string) error
	onReady       func(addr net.Addr)
}

func (e *engine) EnvFlags(fs *flag.FlagSet, getenv func(string) string) {
	e.addr = envflag.Value("addr", "PREVIEW_ADDR", ":8008", "Listen on `host:port`.", fs, getenv)
	e.dir = envflag.Value("dir", "PREVIEW_DIR", "dist", "Serve the built site from `path`.", fs, getenv)
	e.open = envflag.Value("open", "PREVIEW_OPEN", true, "Open the site in the default browser.", fs, getenv)
	e.debug = envflag.Value("debug", "PREVIEW_DEBUG", false, "Serve the list of open connections at "+web.InternalPrefix+"conns.", fs, getenv)
}

func (e *engine) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", cli.ErrInvalidArgs, env.Args)
	}

	for _, line := range banner {
		fmt.Fprintln(env.Stdout, line)
	}

	root, err := site.Open(*e.dir)
	if err != nil {
		return err
	}
	if !root.HasIndex() {
		env.Logf("Warning: %s has no %s, the root URL will show a directory listing.", root.Dir(), site.IndexFile)
	}

	mux := http.NewServeMux()
	mux.Handle("/", site.New(root.FS()))
	web.Health(mux).RegisterFunc("site", site.Check(root.FS()))

	if e.noServerStart {
		return nil
	}

	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:              *e.addr,
		Mux:               mux,
		Logf:              env.Logf,
		LogRequests:       true,
		MaxConns:          1,
		DisableKeepAlives: true,
		ShutdownTimeout:   5 * time.Second,
		Debuggable:        *e.debug,
		Ready: func(addr net.Addr) {
			e.ready(ctx, root, addr)
		},
	})
}

func (e *engine) ready(ctx context.Context, root *site.Root, addr net.Addr) {
	env := cli.GetEnv(ctx)
	fmt.Fprintf(env.Stdout, "Serving at: %s\n", displayAddr(addr))

	if *e.open {
		openURL := e.openURL
		if openURL == nil {
			openURL = openBrowser
		}
		// Best effort: no browser is not a reason to stop serving.
		_ = openURL(localURL(addr))
	}

	// Load the local time zone and the system MIME types before the sandbox
	// hides the files they come from.
	time.Now().Zone()
	mime.TypeByExtension(".html")
	restrict.ReadOnlyUnlessTesting(ctx, root.Dir())

	if e.onReady != nil {
		e.onReady(addr)
	}
}

// localURL returns the URL of the site root on the loopback host name.
func localURL(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return fmt.Sprintf("http://localhost:%d/", tcp.Port)
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://localhost/"
	}
	return "http://localhost:" + port + "/"
}

// displayAddr formats the address the server listens on. A wildcard address
// is shown as 0.0.0.0, whatever IP version the socket uses.
func displayAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(tcp.Port))
}

func openBrowser(url string) error {
	// Without writers the launcher gets /dev/null instead of pipes, so
	// OpenURL doesn't wait for a browser that the launcher leaves running.
	browser.Stdout, browser.Stderr = nil, nil
	return browser.OpenURL(url)
}
