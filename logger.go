package otxray

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/arloliu/otxray"

// Logger receives the recorder's internal debug and error messages.
// keysAndValues are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// handleLogger is the default: debug output is dropped and errors go to the
// global OTel error handler.
type handleLogger struct{}

func (handleLogger) Debug(string, ...any) {}

func (handleLogger) Error(msg string, keysAndValues ...any) {
	otel.Handle(fmt.Errorf("otxray: %s%s", msg, formatKeysAndValues(keysAndValues)))
}

func formatKeysAndValues(kv []any) string {
	if len(kv) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		b.WriteByte(' ')
		fmt.Fprint(&b, kv[i])
		b.WriteByte('=')
		if i+1 < len(kv) {
			fmt.Fprint(&b, kv[i+1])
		}
	}

	return b.String()
}

// NewZapLogger adapts a zap logger. A nil logger yields a no-op zap logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}

	return zapLogger{s: l.Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) Debug(msg string, keysAndValues ...any) { z.s.Debugw(msg, keysAndValues...) }
func (z zapLogger) Error(msg string, keysAndValues ...any) { z.s.Errorw(msg, keysAndValues...) }

// NewOTelLogger bridges to the OpenTelemetry log API. A nil provider uses
// the global LoggerProvider (see [NewLoggerProvider]).
func NewOTelLogger(lp otellog.LoggerProvider) Logger {
	if lp == nil {
		lp = global.GetLoggerProvider()
	}

	return otelLogger{l: lp.Logger(instrumentationName)}
}

type otelLogger struct {
	l otellog.Logger
}

func (o otelLogger) Debug(msg string, keysAndValues ...any) {
	o.emit(otellog.SeverityDebug, "DEBUG", msg, keysAndValues)
}

func (o otelLogger) Error(msg string, keysAndValues ...any) {
	o.emit(otellog.SeverityError, "ERROR", msg, keysAndValues)
}

func (o otelLogger) emit(sev otellog.Severity, text, msg string, kv []any) {
	var r otellog.Record
	r.SetTimestamp(time.Now())
	r.SetSeverity(sev)
	r.SetSeverityText(text)
	r.SetBody(otellog.StringValue(msg))
	for i := 0; i+1 < len(kv); i += 2 {
		r.AddAttributes(otellog.String(fmt.Sprint(kv[i]), fmt.Sprint(kv[i+1])))
	}
	o.l.Emit(context.Background(), r)
}
