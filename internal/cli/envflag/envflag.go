// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package envflag provides a wrapper around the standard flag package, allowing
// flag defaults to be overridden by environment variables.
package envflag

import (
	"flag"
	"strconv"
)

// Type is a constraint that permits only types supported by envflag package.
type Type interface {
	int | bool | string
}

// Value defines a flag with the given name, default value and usage on fs.
//
// If the environment variable envName (looked up with getenv) is set and
// parses as T, it replaces the default. A flag given on the command line
// always wins over the environment.
func Value[T Type](
	name, envName string, value T, usage string,
	fs *flag.FlagSet, getenv func(string) string,
) *T {
	p := new(T)
	*p = value
	if s := getenv(envName); s != "" {
		if v, err := parse[T](s); err == nil {
			*p = v
		}
	}
	fs.Var(&flagValue[T]{p: p}, name, usage+" Can be overridden by "+envName+" environment variable.")
	return p
}

type flagValue[T Type] struct{ p *T }

func (f *flagValue[T]) String() string {
	if f.p == nil {
		return ""
	}
	switch v := any(*f.p).(type) {
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	}
	return ""
}

func (f *flagValue[T]) Set(s string) error {
	v, err := parse[T](s)
	if err != nil {
		return err
	}
	*f.p = v
	return nil
}

// IsBoolFlag lets boolean flags be passed without a value ("-open").
func (f *flagValue[T]) IsBoolFlag() bool {
	var zero T
	_, ok := any(zero).(bool)
	return ok
}

func parse[T Type](s string) (T, error) {
	var (
		v   any
		err error
		out T
	)
	switch any(out).(type) {
	case int:
		v, err = strconv.Atoi(s)
	case bool:
		v, err = strconv.ParseBool(s)
	case string:
		v = s
	}
	if err != nil {
		return out, err
	}
	return v.(T), nil
}
