// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"go.astrophena.name/preview/internal/cli"
	"go.astrophena.name/preview/internal/cli/clitest"
	"go.astrophena.name/preview/internal/site"
	"go.astrophena.name/preview/internal/testutil"
)

const testSite = `
-- index.html --
<!DOCTYPE html>
<title>Preview</title>
<h1>It works!</h1>
-- docs/index.html --
<h1>Docs</h1>
-- css/main.css --
h1 { color: rebeccapurple; }
`

func TestEngineMain(t *testing.T) {
	t.Parallel()

	dir := testutil.Site(t, testSite)
	noIndex := testutil.Site(t, `
-- about.html --
about
`)

	clitest.Run(t, func(t *testing.T) *engine {
		e := new(engine)
		e.noServerStart = true
		return e
	}, map[string]clitest.Case[*engine]{
		"serves existing directory": {
			Args:       []string{"-dir", dir},
			WantStdout: banner,
		},
		"environment overrides defaults": {
			Env: map[string]string{
				"PREVIEW_DIR":   dir,
				"PREVIEW_ADDR":  "localhost:9999",
				"PREVIEW_OPEN":  "false",
				"PREVIEW_DEBUG": "true",
			},
			WantFlags: map[string]string{
				"addr":  "localhost:9999",
				"dir":   dir,
				"open":  "false",
				"debug": "true",
			},
		},
		"flags override environment": {
			Args: []string{"-dir", dir, "-open", "-addr", ":8080"},
			Env: map[string]string{
				"PREVIEW_DIR":  "/nonexistent",
				"PREVIEW_OPEN": "false",
				"PREVIEW_ADDR": "localhost:9999",
			},
			WantFlags: map[string]string{
				"addr": ":8080",
				"dir":  dir,
				"open": "true",
			},
		},
		"unparseable environment keeps defaults": {
			Args: []string{"-dir", dir},
			Env:  map[string]string{"PREVIEW_OPEN": "sometimes"},
			WantFlags: map[string]string{
				"open": "true",
			},
		},
		"warns about missing index": {
			Args:         []string{"-dir", noIndex},
			WantInStderr: "has no index.html",
		},
	})
}

func TestEngineFailsWithoutServing(t *testing.T) {
	t.Parallel()

	dir := testutil.Site(t, testSite)
	file := filepath.Join(dir, "index.html")

	// These engines really start a server if they get that far. The run
	// deadline of clitest catches a server that keeps running.
	clitest.Run(t, func(t *testing.T) *engine {
		e := new(engine)
		e.onReady = func(addr net.Addr) { t.Errorf("server started on %s", addr) }
		e.openURL = func(string) error {
			t.Error("browser must not be opened")
			return nil
		}
		return e
	}, map[string]clitest.Case[*engine]{
		"prints usage with help flag": {
			Args:         []string{"-h"},
			WantErr:      flag.ErrHelp,
			WantInStderr: "Preview serves an already built static site",
		},
		"version": {
			Args:    []string{"-version"},
			WantErr: cli.ErrExitVersion,
		},
		"defaults without dist": {
			Args:       []string{},
			WantErr:    site.ErrNoSite,
			WantStdout: banner,
			WantFlags: map[string]string{
				"addr":  ":8008",
				"dir":   "dist",
				"open":  "true",
				"debug": "false",
			},
		},
		"missing directory": {
			Args:       []string{"-addr", "localhost:0", "-dir", "/nonexistent/preview/dist"},
			WantErr:    site.ErrNoSite,
			WantStdout: banner,
		},
		"directory is a file": {
			Args:    []string{"-addr", "localhost:0", "-dir", file},
			WantErr: site.ErrNoSite,
		},
		"rejects arguments": {
			Args:    []string{"-addr", "localhost:0", "-dir", dir, "extra"},
			WantErr: cli.ErrInvalidArgs,
		},
	})
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type running struct {
	addr           string
	stdout, stderr *syncBuffer
	opened         chan string
	stop           func() error
}

// start runs the preview server in the background until the returned stop
// function is called.
func start(t *testing.T, e *engine, args ...string) *running {
	t.Helper()

	r := &running{
		stdout: new(syncBuffer),
		stderr: new(syncBuffer),
		opened: make(chan string, 1),
	}
	if e.openURL == nil {
		e.openURL = func(url string) error {
			r.opened <- url
			return nil
		}
	}
	ready := make(chan net.Addr, 1)
	e.onReady = func(addr net.Addr) { ready <- addr }

	env := &cli.Env{
		Args:   append([]string{"-addr", "localhost:0"}, args...),
		Getenv: func(string) string { return "" },
		Stdin:  strings.NewReader(""),
		Stdout: r.stdout,
		Stderr: r.stderr,
	}
	ctx, cancel := context.WithCancel(cli.WithEnv(context.Background(), env))
	errCh := make(chan error, 1)
	go func() { errCh <- cli.Run(ctx, e) }()

	select {
	case err := <-errCh:
		cancel()
		t.Fatalf("preview failed to start: %v", err)
	case addr := <-ready:
		r.addr = addr.String()
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("preview didn't start in time")
	}

	var (
		once sync.Once
		err  error
	)
	r.stop = func() error {
		once.Do(func() {
			cancel()
			err = <-errCh
		})
		return err
	}
	t.Cleanup(func() { r.stop() })
	return r
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	c := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	res, err := c.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, b
}

func TestServe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := testutil.Site(t, testSite)
	r := start(t, new(engine), "-dir", dir)
	base := "http://" + r.addr

	res, body := get(t, base+"/")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)
	testutil.AssertEqual(t, res.Header.Get("Content-Type"), "text/html; charset=utf-8")
	testutil.AssertEqual(t, string(body), "<!DOCTYPE html>\n<title>Preview</title>\n<h1>It works!</h1>\n")

	// The server stays available for more requests.
	res, body = get(t, base+"/docs/")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)
	testutil.AssertEqual(t, string(body), "<h1>Docs</h1>\n")

	res, _ = get(t, base+"/missing.html")
	testutil.AssertEqual(t, res.StatusCode, http.StatusNotFound)

	res, body = get(t, base+"/css/main.css")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)
	testutil.AssertEqual(t, res.Header.Get("Content-Type"), "text/css; charset=utf-8")
	testutil.AssertEqual(t, string(body), "h1 { color: rebeccapurple; }\n")

	res, body = get(t, base+"/.preview/health")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)
	if !strings.Contains(string(body), `"site"`) {
		t.Errorf("health report must include the site check, got %s", body)
	}

	res, _ = get(t, base+"/.preview/conns")
	testutil.AssertEqual(t, res.StatusCode, http.StatusNotFound)

	_, port, err := net.SplitHostPort(r.addr)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case url := <-r.opened:
		testutil.AssertEqual(t, url, "http://localhost:"+port+"/")
	default:
		t.Fatal("browser was not opened")
	}

	if err := r.stop(); err != nil {
		t.Fatalf("stopping preview: %v", err)
	}

	stdout := r.stdout.String()
	for _, line := range banner {
		if !strings.Contains(stdout, line+"\n") {
			t.Errorf("stdout must contain %q, got:\n%s", line, stdout)
		}
	}
	if !strings.Contains(stdout, "Serving at: "+r.addr+"\n") {
		t.Errorf("stdout must contain the bound address, got:\n%s", stdout)
	}
	if strings.Index(stdout, banner[len(banner)-1]) > strings.Index(stdout, "Serving at:") {
		t.Errorf("banner must be printed before the address, got:\n%s", stdout)
	}

	stderr := r.stderr.String()
	for _, want := range []string{
		`"GET / HTTP/1.1" 200`,
		`"GET /docs/ HTTP/1.1" 200`,
		`"GET /missing.html HTTP/1.1" 404`,
	} {
		if !strings.Contains(stderr, want) {
			t.Errorf("access log must contain %q, got:\n%s", want, stderr)
		}
	}
}

func TestServeDebug(t *testing.T) {
	dir := testutil.Site(t, testSite)
	r := start(t, new(engine), "-dir", dir, "-open=false", "-debug")

	res, body := get(t, "http://"+r.addr+"/.preview/conns")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)
	if !strings.Contains(string(body), "Connections") {
		t.Errorf("unexpected connections page: %s", body)
	}
}

func TestBrowserFailureIsIgnored(t *testing.T) {
	dir := testutil.Site(t, testSite)
	e := new(engine)
	called := make(chan struct{}, 1)
	e.openURL = func(string) error {
		called <- struct{}{}
		return errors.New("no display")
	}
	r := start(t, e, "-dir", dir)

	<-called
	res, _ := get(t, "http://"+r.addr+"/")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)

	if err := r.stop(); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(r.stdout.String()+r.stderr.String(), "no display") {
		t.Error("browser failure must not be reported")
	}
}

func TestNoBrowser(t *testing.T) {
	dir := testutil.Site(t, testSite)
	r := start(t, new(engine), "-dir", dir, "-open=false")

	res, _ := get(t, "http://"+r.addr+"/")
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)

	select {
	case url := <-r.opened:
		t.Fatalf("browser must not be opened, but got %q", url)
	default:
	}
}

func TestPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	e := new(engine)
	e.onReady = func(net.Addr) { t.Error("server must not start when the port is taken") }
	e.openURL = func(string) error {
		t.Error("browser must not be opened when the port is taken")
		return nil
	}

	var stdout bytes.Buffer
	env := &cli.Env{
		Args:   []string{"-dir", testutil.Site(t, testSite), "-addr", l.Addr().String()},
		Stdout: &stdout,
		Stderr: io.Discard,
	}
	err = cli.Run(cli.WithEnv(context.Background(), env), e)
	if err == nil {
		t.Fatal("must fail when the port is already in use")
	}
	if strings.Contains(stdout.String(), "Serving at:") {
		t.Fatal("must not report serving when listening failed")
	}
}

func TestLocalURL(t *testing.T) {
	testutil.AssertEqual(t, localURL(&net.TCPAddr{IP: net.IPv6zero, Port: 8008}), "http://localhost:8008/")
	testutil.AssertEqual(t, localURL(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 41234}), "http://localhost:41234/")
}

func TestDisplayAddr(t *testing.T) {
	cases := map[string]struct {
		addr net.Addr
		want string
	}{
		"IPv6 wildcard": {
			addr: &net.TCPAddr{IP: net.IPv6zero, Port: 8008},
			want: "0.0.0.0:8008",
		},
		"IPv4 wildcard": {
			addr: &net.TCPAddr{IP: net.IPv4zero, Port: 8008},
			want: "0.0.0.0:8008",
		},
		"loopback": {
			addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 41234},
			want: "127.0.0.1:41234",
		},
		"IPv6 loopback": {
			addr: &net.TCPAddr{IP: net.IPv6loopback, Port: 41234},
			want: "[::1]:41234",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, displayAddr(tc.addr), tc.want)
		})
	}
}

// fakeLauncher puts an xdg-open on PATH that records the URL it was given
// and leaves a long-running child behind, like a freshly started browser
// does. It returns the file where the URL is recorded.
func fakeLauncher(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("xdg-open is only used on Linux")
	}
	bin := t.TempDir()
	script := `#!/bin/sh
echo "$1" > "$(dirname "$0")/url"
sleep 5 &
exit 0
`
	if err := os.WriteFile(filepath.Join(bin, "xdg-open"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	return filepath.Join(bin, "url")
}

func TestOpenBrowserReturnsWhileBrowserRuns(t *testing.T) {
	urlFile := fakeLauncher(t)

	start := time.Now()
	if err := openBrowser("http://localhost:8008/"); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took > 3*time.Second {
		t.Fatalf("openBrowser waited %v for the browser to exit", took)
	}

	b, err := os.ReadFile(urlFile)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "http://localhost:8008/\n")
}

func TestInterruptWhileBrowserRuns(t *testing.T) {
	urlFile := fakeLauncher(t)

	began := time.Now()
	e := new(engine)
	e.openURL = openBrowser
	r := start(t, e, "-dir", testutil.Site(t, testSite))
	if err := r.stop(); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(began); took > 3*time.Second {
		t.Fatalf("preview took %v to stop after an interrupt", took)
	}

	_, port, err := net.SplitHostPort(r.addr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(urlFile)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "http://localhost:"+port+"/\n")
}
