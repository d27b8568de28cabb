package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Level = logrus.Level

const (
	LevelDebug = logrus.DebugLevel
	LevelInfo  = logrus.InfoLevel
	LevelWarn  = logrus.WarnLevel
	LevelError = logrus.ErrorLevel
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(jsonFormatter())
	return l
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// Init configures the process logger. Unknown levels keep the current one.
func Init(service, level, format string) *logrus.Logger {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		std.SetLevel(lvl)
	}
	SetFormat(format)
	hooks := make(logrus.LevelHooks)
	hooks.Add(serviceHook(service))
	std.ReplaceHooks(hooks)
	return std
}

func SetLevel(l Level)       { std.SetLevel(l) }
func SetOutput(w io.Writer) { std.SetOutput(w) }

// SetFormat switches between "json" (default) and "text" output.
func SetFormat(format string) {
	if strings.EqualFold(format, "text") {
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
		return
	}
	std.SetFormatter(jsonFormatter())
}

// L returns the underlying logrus logger.
func L() *logrus.Logger { return std }

// Entry returns an entry carrying the request id found in ctx, if any.
func Entry(ctx context.Context) *logrus.Entry {
	e := logrus.NewEntry(std)
	if ctx == nil {
		return e
	}
	if id := middleware.GetReqID(ctx); id != "" {
		e = e.WithField("request_id", id)
	}
	return e
}

func Debug(ctx context.Context, msg string, kv ...any) {
	Entry(ctx).WithFields(fields(kv)).Debug(msg)
}

func Info(ctx context.Context, msg string, kv ...any) {
	Entry(ctx).WithFields(fields(kv)).Info(msg)
}

func Warn(ctx context.Context, msg string, kv ...any) {
	Entry(ctx).WithFields(fields(kv)).Warn(msg)
}

// Error logs msg at error level; a non-nil err is appended as "msg: err".
func Error(ctx context.Context, err error, msg string, kv ...any) {
	e := Entry(ctx).WithFields(fields(kv))
	if err != nil {
		e.WithError(err).Error(msg + ": " + err.Error())
		return
	}
	e.Error(msg)
}

// fields turns alternating key/value pairs into logrus fields. A trailing
// key without a value is logged under "!BADKEY".
func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		if i+1 >= len(kv) {
			f["!BADKEY"] = kv[i]
			break
		}
		f[key] = kv[i+1]
	}
	return f
}

type serviceHook string

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if h != "" {
		e.Data["service"] = string(h)
	}
	return nil
}
