package logging

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/eugenenazirov/yourdles/internal/settings"
)

// sinkConfig is one of the logger.stream, logger.file or logger.tsv sections.
type sinkConfig struct {
	level   Level
	format  string
	datefmt string
}

func readSinkConfig(v settings.Value) sinkConfig {
	return sinkConfig{
		level:   ToLevel(v.Get("level").Raw()),
		format:  v.Get("format").StringOr(defaultFormat),
		datefmt: v.Get("datefmt").String(),
	}
}

func (c sinkConfig) core(out zapcore.WriteSyncer) zapcore.Core {
	return zapcore.NewCore(newFormatEncoder(c.format, c.datefmt), out, c.level.enabler())
}

// literalCore builds a sink whose records never span more than one line:
// the message, every field value and the stack are written as quoted literals.
func (c sinkConfig) literalCore(name string, out zapcore.WriteSyncer, reporter *errorReporter) zapcore.Core {
	enc := newFormatEncoder(c.format, c.datefmt)
	enc.literal = true
	return newLiteralCore(name, zapcore.NewCore(enc, out, c.level.enabler()), reporter)
}

// errorReporter is the internal error channel of the logging system: sink
// failures are written there instead of reaching the code that logged.
// Reports are throttled so a broken sink cannot flood the channel.
type errorReporter struct {
	mu    sync.Mutex
	out   io.Writer
	limit *rate.Sometimes
}

func newErrorReporter(out io.Writer) *errorReporter {
	return &errorReporter{
		out:   out,
		limit: &rate.Sometimes{First: 1, Interval: time.Second},
	}
}

func (r *errorReporter) report(sink string, ent zapcore.Entry, err error) {
	r.limit.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, _ = fmt.Fprintf(r.out, "--- Logging error ---\n%s sink failed to write a %s record of %q logged at %s: %v\n",
			sink, fromZap(ent.Level), ent.LoggerName, ent.Time.Format(time.RFC3339), err)
	})
}

// literalCore writes the quoted literal of each message so that tabs and
// newlines inside it cannot break the tab-separated layout. Failures are
// handed to the reporter and never returned.
type literalCore struct {
	zapcore.Core
	name     string
	reporter *errorReporter
}

func newLiteralCore(name string, core zapcore.Core, reporter *errorReporter) zapcore.Core {
	return &literalCore{Core: core, name: name, reporter: reporter}
}

func (c *literalCore) With(fields []zapcore.Field) zapcore.Core {
	return &literalCore{Core: c.Core.With(fields), name: c.name, reporter: c.reporter}
}

func (c *literalCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *literalCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	defer func() {
		if r := recover(); r != nil {
			c.reporter.report(c.name, ent, fmt.Errorf("panic: %v", r))
		}
	}()
	ent.Message = strconv.Quote(ent.Message)
	if err := c.Core.Write(ent, fields); err != nil {
		c.reporter.report(c.name, ent, err)
	}
	return nil
}
