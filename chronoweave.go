// Package chronoweave rewrites compiled method bodies so that each selected
// method measures and logs its own wall-clock duration. The package is the
// convenience surface over the engine: it accepts a structural module model,
// selects eligible methods, weaves them, and reports the outcome.
//
// Basic usage:
//
//	report, err := chronoweave.Weave(ctx, module)
//
// Hosts exchanging serialized modules can use WeaveData, which decodes,
// weaves, and re-encodes in one call:
//
//	woven, report, err := chronoweave.WeaveData(ctx, data, il.EncodingJSON)
package chronoweave

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cloudcmds/chronoweave/il"
	"github.com/cloudcmds/chronoweave/weaver"
)

// Option configures a weave.
type Option func(*options)

type options struct {
	logger         *zerolog.Logger
	concurrency    int
	stateFieldName string
}

func collectOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) weaverOpts() []weaver.Option {
	var opts []weaver.Option
	if o.logger != nil {
		opts = append(opts, weaver.WithLogger(*o.logger))
	}
	if o.concurrency > 0 {
		opts = append(opts, weaver.WithConcurrency(o.concurrency))
	}
	if o.stateFieldName != "" {
		opts = append(opts, weaver.WithStateFieldName(o.stateFieldName))
	}
	return opts
}

// WithLogger sets the logger used for progress events. By default nothing
// is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithConcurrency sets how many methods may be woven in parallel. The
// default is sequential.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithStateFieldName overrides the conventional name of the dispatch-state
// field on state machine types, for hosts whose compiler uses a different
// naming scheme.
func WithStateFieldName(name string) Option {
	return func(o *options) {
		o.stateFieldName = name
	}
}

// Weave rewrites the module in place and returns the per-method report.
func Weave(ctx context.Context, module *il.Module, opts ...Option) (*weaver.Report, error) {
	o := collectOptions(opts...)
	return weaver.New(module, o.weaverOpts()...).WeaveModule(ctx)
}

// WeaveData decodes a serialized module, weaves it, and re-encodes it in
// the same encoding. The report describes what happened to each method.
func WeaveData(ctx context.Context, data []byte, encoding il.Encoding, opts ...Option) ([]byte, *weaver.Report, error) {
	module, err := il.Unmarshal(data, encoding)
	if err != nil {
		return nil, nil, err
	}
	report, err := Weave(ctx, module, opts...)
	if err != nil {
		return nil, nil, err
	}
	woven, err := il.Marshal(module, encoding)
	if err != nil {
		return nil, nil, err
	}
	return woven, report, nil
}
