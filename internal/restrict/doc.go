// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package restrict enables programs to utilize the [Landlock] Linux Security
// Module (LSM) for sandboxing on supported systems.
//
// On systems where Landlock is not available, this package will have no effect.
//
// [Landlock]: https://landlock.io
package restrict

import (
	"context"
	"testing"
)

// ReadOnlyUnlessTesting confines the file system access of the whole program
// to reading the directory trees in dirs, unless the program is running under
// 'go test'.
//
// Sandboxing is best effort. If it fails, a log message is written and the
// program continues execution unconfined.
func ReadOnlyUnlessTesting(ctx context.Context, dirs ...string) {
	if !testing.Testing() {
		ReadOnly(ctx, dirs...)
	}
}
