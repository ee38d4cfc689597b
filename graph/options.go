// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import "github.com/go-logr/logr"

// Option configures a Graph.
type Option func(*options)

type options struct {
	logger logr.Logger
	strict bool
}

func defaultOptions() options {
	return options{logger: logr.Discard(), strict: true}
}

// WithLogger sets the logger. Loads and binding changes log at V(1),
// evaluations at V(2).
func WithLogger(l logr.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStrict controls whether loading fails on operators the runtime does
// not implement. A model directory manifest that sets strict wins. The
// default is true.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}
