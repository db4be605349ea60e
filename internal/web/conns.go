// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.astrophena.name/preview/internal/logger"
	"go.astrophena.name/preview/internal/version"
)

// Conns returns an [http.Handler] that displays the list of active
// HTTP connections and associates it with the provided http.Server.
//
// It replaces s.ConnState, so it must be called before s starts serving.
func Conns(logf logger.Logf, s *http.Server) http.Handler {
	ch := &connsHandler{logf: logf, conns: make(ConnMap)}
	s.ConnState = ch.connState
	return ch
}

// ConnMap represents active connections to the HTTP server, keyed by remote
// address.
type ConnMap map[string]*Conn

// Conn represents an active HTTP connection.
type Conn struct {
	Network string         `json:"network"`
	Addr    string         `json:"addr"`
	Time    time.Time      `json:"time"`
	State   http.ConnState `json:"state"`
}

// connsHandler is a [http.Handler] that displays the list of active connections.
// It's inspired by https://x.com/bradfitz/status/1349825913136017415.
type connsHandler struct {
	mu    sync.Mutex
	conns ConnMap

	logf logger.Logf
}

// connState implements the http.Server.ConnState callback function.
func (ch *connsHandler) connState(c net.Conn, state http.ConnState) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	addr := c.RemoteAddr().String()
	if state == http.StateClosed || state == http.StateHijacked {
		delete(ch.conns, addr)
		return
	}
	ac, ok := ch.conns[addr]
	if !ok {
		ac = &Conn{
			Network: c.RemoteAddr().Network(),
			Addr:    addr,
			Time:    time.Now(),
		}
		ch.conns[addr] = ac
	}
	ac.State = state
}

type connView struct {
	Addr  string
	State string
	Age   time.Duration
}

func (ch *connsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if !allowRead(w, r, format == "json") {
		return
	}
	switch format {
	case "", "html", "json":
	default:
		RespondError(w, r, fmt.Errorf("format %q: %w", format, ErrBadRequest))
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if format == "json" {
		RespondJSON(w, ch.conns)
		return
	}

	var (
		views []connView
		idle  int
	)
	for _, c := range ch.conns {
		if c.State == http.StateIdle {
			idle++
		}
		views = append(views, connView{
			Addr:  c.Addr,
			State: c.State.String(),
			Age:   time.Since(c.Time).Round(time.Millisecond),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Addr < views[j].Addr })

	noun := "connection"
	if len(views) != 1 {
		noun += "s"
	}
	data := struct {
		CmdName string
		Summary string
		Conns   []connView
	}{
		CmdName: version.CmdName(),
		Summary: fmt.Sprintf("%d %s, %d idle.", len(views), noun, idle),
		Conns:   views,
	}

	var buf bytes.Buffer
	if err := connsTemplate.Execute(&buf, data); err != nil {
		ch.logf("conns: rendering template: %v", err)
		RespondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

var (
	//go:embed templates/conns.html
	connsTemplateStr string
	connsTemplate    = template.Must(template.New("conns").Funcs(template.FuncMap{
		"static": staticPath,
	}).Parse(connsTemplateStr))
)
