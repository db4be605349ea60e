// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Preview serves an already built static site over HTTP and opens it in the
default web browser.

It is not a development server: it doesn't watch files, rebuild anything or
reload the browser. Build the site first, then run preview from the directory
that contains the build output directory.

# Usage

	$ preview [flags...]

By default preview serves the dist directory on port 8008 of all network
interfaces and opens http://localhost:8008/. Requests are handled one
connection at a time.

Every request is logged to standard error. A health report is available at
/.preview/health, and, with -debug, the list of open connections at
/.preview/conns.

On Linux, once the server is up, preview confines itself with Landlock to
reading the served directory.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/preview/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
