// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/preview/internal/cli"
)

func send(t testing.TB, h http.Handler, method, path string, wantStatus int) string {
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if wantStatus != rec.Code {
		t.Fatalf("want response code %d, got %d", wantStatus, rec.Code)
	}

	return rec.Body.String()
}

// testEnvContext returns a context carrying a [cli.Env] whose stderr is
// captured in the returned buffer.
func testEnvContext() (context.Context, *bytes.Buffer) {
	var stderr bytes.Buffer
	env := &cli.Env{
		Stdout: io.Discard,
		Stderr: &stderr,
	}
	return cli.WithEnv(context.Background(), env), &stderr
}

// noKeepAliveClient returns a client that doesn't leave idle connections (and
// their goroutines) behind.
func noKeepAliveClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}
