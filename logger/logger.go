package logger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	opentracing "github.com/opentracing/opentracing-go"
)

var (
	Plain        *zap.Logger
	Sugar        *WrappedLogger
	undoLogger   func()
	undoMaxProcs func()
	Recorded     *observer.ObservedLogs
)

const (
	serviceNameKey = "servicename"
	// Repeated here so that the logger does not depend on any tracing setup.
	TraceIDKey = "x-b3-traceid"
)

// so we dont have to import zap everywhere
type Option = zap.Option

type WrappedLogger struct {
	*zap.SugaredLogger
}

func keyValues(args []any) []any {
	keyVals := make([]any, 0, 2*len(args))
	for i, v := range args {
		keyVals = append(keyVals, fmt.Sprintf("arg%d", i), v)
	}
	return keyVals
}

func (l *WrappedLogger) InfoR(msg string, args ...any) {
	l.WithOptions(zap.AddCallerSkip(1)).Infow(msg, keyValues(args)...)
}

func (l *WrappedLogger) DebugR(msg string, args ...any) {
	l.WithOptions(zap.AddCallerSkip(1)).Debugw(msg, keyValues(args)...)
}

// OnExit should be deferred immediately after calling the
// New() method.
func OnExit() {
	_ = Sugar.Sync()
	_ = Plain.Sync()
	undoMaxProcs()
	undoLogger()
	Recorded = nil
}

// Resource holds the output options for a logger.
type Resource struct {
	console  bool
	filename string
}

type ResourceOption func(*Resource)

func WithFile(filename string) ResourceOption {
	return func(r *Resource) {
		r.filename = filename
	}
}

func WithConsole() ResourceOption {
	return func(r *Resource) {
		r.console = true
	}
}

func (r *Resource) apply(cfg zap.Config) zap.Config {
	if r.filename != "" {
		cfg.OutputPaths = []string{r.filename}
	}
	if r.console {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zapcore.EncoderConfig{
			MessageKey: "message",
		}
	}
	return cfg
}

func build(cfg zap.Config, zopts []zap.Option) *zap.Logger {
	l, err := cfg.Build(zopts...)
	if err != nil {
		log.Panicf("cannot initialise zap logger: %v", err)
	}
	return l
}

// New creates 2 loggers (plain and sugared) as global variables according
// to the desired loglevel ("DEBUG", "NOOP", "TEST", default is "INFO").
// Log output from the standard library logger is redirected to these loggers.
// Both ResourceOption and zap.Option types are supported option types. The
// zap.Options are passed on the to zap logger.
func New(level string, opts ...any) {
	r := &Resource{}

	var zopts []zap.Option
	for _, iopt := range opts {
		switch opt := iopt.(type) {
		case ResourceOption:
			opt(r)
		case zap.Option:
			zopts = append(zopts, opt)
		}
	}

	switch level {
	case DebugLevel:
		Plain = build(r.apply(zap.NewDevelopmentConfig()), zopts)

	case "NOOP":
		Plain = zap.NewNop()

	case "TEST":
		core, recorded := observer.New(zapcore.DebugLevel)
		ram := zap.WrapCore(
			func(zapcore.Core) zapcore.Core {
				return core
			},
		)
		Plain = build(r.apply(zap.NewDevelopmentConfig()), zopts).WithOptions(ram)
		Recorded = recorded

	default:
		Plain = build(r.apply(zap.NewProductionConfig()), zopts)
	}
	undoLogger = zap.RedirectStdLog(Plain)
	Sugar = &WrappedLogger{
		Plain.Sugar(),
	}

	Sugar.Debugf("Go version %s", runtime.Version())

	// Match GOMAXPROCS to the container cpu quota. Stalls on cores the process
	// does not really have show up as intermittent gc latency.
	Sugar.Debugf("Cores allocation GOMAXPROCS %v", runtime.GOMAXPROCS(-1))
	var err error
	undoMaxProcs, err = maxprocs.Set(maxprocs.Logger(Sugar.Infof))
	if err != nil {
		Sugar.Infof("Error for automaxprocs: %v", err)
	}
	Sugar.Debugf("Cores allocation GOMAXPROCS %v", runtime.GOMAXPROCS(-1))

	// automemlimit sets GOMEMLIMIT to 90% of the cgroup limit unless
	// GOMEMLIMIT is already set or AUTOMEMLIMIT=off.
	Sugar.Debugf("Memory Limit GOMEMLIMIT %v", debug.SetMemoryLimit(-1))
}

// FromContext takes the trace ID from the current span and adds it to a child wrapped logger.
//
// This will be called on entry to a method or a function that has a context.Context.
func (wl *WrappedLogger) FromContext(ctx context.Context) *WrappedLogger {

	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return wl
	}
	carrier := opentracing.TextMapCarrier{}
	err := opentracing.GlobalTracer().Inject(span.Context(), opentracing.TextMap, carrier)
	if err != nil {
		wl.Debugf("FromContext: can't inject span: %v", err)
		return wl
	}

	traceID, found := carrier[TraceIDKey]
	if !found || traceID == "" {
		return wl
	}

	return &WrappedLogger{
		SugaredLogger: wl.With(zap.String(TraceIDKey, traceID)),
	}
}

func (wl *WrappedLogger) WithServiceName(servicename string) *WrappedLogger {
	return wl.WithIndex(serviceNameKey, servicename)
}

func (wl *WrappedLogger) WithIndex(key, value string) *WrappedLogger {
	return &WrappedLogger{
		SugaredLogger: wl.With(zap.String(key, strings.ToLower(value))),
	}
}

func (wl *WrappedLogger) WithOptions(opts ...Option) *WrappedLogger {
	return &WrappedLogger{
		wl.Desugar().WithOptions(opts...).Sugar(),
	}
}

// Close attempts to flush any buffered log entries.
func (wl *WrappedLogger) Close() {
	err := wl.Sync()

	// This is usually 'sync /dev/stderr invalid argument' which is pointless
	if err != nil && !errors.Is(err, syscall.EINVAL) {
		wl.Debugf("Close: Failed to flush log: %v", err)
	}
}
