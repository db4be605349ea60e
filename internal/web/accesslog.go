// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"

	"go.astrophena.name/preview/internal/logger"
)

// used in tests
var timeNow = time.Now

// AccessLog returns an [http.Handler] that serves requests with h and then
// writes one line per request to logf:
//
//	127.0.0.1 - - [19/Oct/2026 14:02:11] "GET /index.html HTTP/1.1" 200 1024
//
// The last two fields are the response status code and body size in bytes.
func AccessLog(logf logger.Logf, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(h, w, r)

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		logf("%s - - [%s] %q %d %d",
			host,
			timeNow().Format("02/Jan/2006 15:04:05"),
			r.Method+" "+r.RequestURI+" "+r.Proto,
			m.Code,
			m.Written,
		)
	})
}
