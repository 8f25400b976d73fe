package descriptor

import (
	"io"
	"log"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-hclog"
)

// newHclogAdapter lets callers hand the library a logr.Logger while the
// descriptor code logs through hclog's interface.
func newHclogAdapter(logger logr.Logger) hclog.Logger {
	return &hclogAdapter{logger: logger}
}

type hclogAdapter struct {
	logger      logr.Logger
	impliedArgs []interface{}
	name        string
}

// logr has no warn level; warnings go to V(0) tagged with level=warn and
// trace/debug both map to V(1).
func (a *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		a.logger.V(1).Info(msg, args...)
	case hclog.Warn:
		a.logger.Info(msg, append([]interface{}{"level", "warn"}, args...)...)
	case hclog.Error:
		a.logger.Error(nil, msg, args...)
	default:
		a.logger.Info(msg, args...)
	}
}

func (a *hclogAdapter) Trace(msg string, args ...interface{}) { a.Log(hclog.Trace, msg, args...) }
func (a *hclogAdapter) Debug(msg string, args ...interface{}) { a.Log(hclog.Debug, msg, args...) }
func (a *hclogAdapter) Info(msg string, args ...interface{})  { a.Log(hclog.Info, msg, args...) }
func (a *hclogAdapter) Warn(msg string, args ...interface{})  { a.Log(hclog.Warn, msg, args...) }
func (a *hclogAdapter) Error(msg string, args ...interface{}) { a.Log(hclog.Error, msg, args...) }

func (a *hclogAdapter) IsTrace() bool { return a.logger.V(1).Enabled() }
func (a *hclogAdapter) IsDebug() bool { return a.logger.V(1).Enabled() }
func (a *hclogAdapter) IsInfo() bool  { return a.logger.Enabled() }
func (a *hclogAdapter) IsWarn() bool  { return a.logger.Enabled() }
func (a *hclogAdapter) IsError() bool { return a.logger.Enabled() }

func (a *hclogAdapter) ImpliedArgs() []interface{} {
	return a.impliedArgs
}

func (a *hclogAdapter) With(args ...interface{}) hclog.Logger {
	implied := make([]interface{}, 0, len(a.impliedArgs)+len(args))
	implied = append(append(implied, a.impliedArgs...), args...)
	return &hclogAdapter{
		logger:      a.logger.WithValues(args...),
		impliedArgs: implied,
		name:        a.name,
	}
}

func (a *hclogAdapter) Name() string {
	return a.name
}

func (a *hclogAdapter) Named(name string) hclog.Logger {
	full := name
	if a.name != "" {
		full = a.name + "." + name
	}
	return &hclogAdapter{
		logger:      a.logger.WithName(name),
		impliedArgs: a.impliedArgs,
		name:        full,
	}
}

func (a *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{
		logger:      a.logger.WithName(name),
		impliedArgs: a.impliedArgs,
		name:        name,
	}
}

// SetLevel is a no-op; logr verbosity is fixed by the sink.
func (a *hclogAdapter) SetLevel(hclog.Level) {}

func (a *hclogAdapter) GetLevel() hclog.Level {
	if a.logger.V(1).Enabled() {
		return hclog.Debug
	}
	return hclog.Info
}

func (a *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(a.StandardWriter(opts), "", 0)
}

func (a *hclogAdapter) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		a.Info(strings.TrimRight(string(p), "\n"))
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
