package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eugenenazirov/yourdles/internal/settings"
)

const (
	// RootLogger is used when neither the caller nor logger.name give a name.
	RootLogger = "root"
	// DefaultSpaces is the indentation width of one scope level.
	DefaultSpaces = 2

	sessionDateLayout = "060102"
	textLogName       = "debug.log"
	tsvLogName        = "debug.tsv"
)

// ConfigSource exposes the current settings snapshot.
type ConfigSource interface {
	Conf() settings.Value
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClock overrides the time source used to name the session directory.
func WithClock(clock func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.clock = clock
	}
}

// WithStdout overrides the destination of the stream sink.
func WithStdout(w io.Writer) FactoryOption {
	return func(f *Factory) {
		f.stdout = w
	}
}

// WithStderr overrides the destination of internal errors and of the
// fallback sink used when no sink is configured.
func WithStderr(w io.Writer) FactoryOption {
	return func(f *Factory) {
		f.stderr = w
	}
}

// Factory creates named Adapters once and hands out the same instance on
// every later request, even if the settings changed in between.
//
// A Factory is not safe for concurrent use.
type Factory struct {
	src    ConfigSource
	clock  func() time.Time
	stdout io.Writer
	stderr io.Writer

	sessionRoot string
	loggers     map[string]*Adapter
	files       map[string]*os.File
	writers     map[string]zapcore.WriteSyncer
	stdoutSink  zapcore.WriteSyncer
	stderrSink  zapcore.WriteSyncer
	reporter    *errorReporter
}

// NewFactory fixes the session directory, <dirs.logs>/<YYMMDD>, for the
// lifetime of the factory.
func NewFactory(src ConfigSource, opts ...FactoryOption) *Factory {
	f := &Factory{
		src:     src,
		clock:   time.Now,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		loggers: make(map[string]*Adapter),
		files:   make(map[string]*os.File),
		writers: make(map[string]zapcore.WriteSyncer),
	}
	for _, opt := range opts {
		opt(f)
	}
	if logs := src.Conf().Path("dirs.logs").String(); logs != "" {
		f.sessionRoot = filepath.Join(logs, f.clock().Format(sessionDateLayout))
	}
	f.stdoutSink = zapcore.Lock(zapcore.AddSync(f.stdout))
	f.stderrSink = zapcore.Lock(zapcore.AddSync(f.stderr))
	f.reporter = newErrorReporter(f.stderrSink)
	return f
}

// SessionRoot returns the per-run directory of file sinks, or "" when
// dirs.logs is not configured.
func (f *Factory) SessionRoot() string {
	return f.sessionRoot
}

// Default returns the logger named by logger.name.
func (f *Factory) Default() (*Adapter, error) {
	return f.GetLogger("")
}

// GetLogger returns the Adapter registered under name, building it from the
// current settings on first use. An empty name means logger.name, then RootLogger.
func (f *Factory) GetLogger(name string) (*Adapter, error) {
	conf := f.src.Conf()
	if name == "" {
		name = conf.Path("logger.name").String()
	}
	if name == "" {
		name = RootLogger
	}
	if adapter, ok := f.loggers[name]; ok {
		return adapter, nil
	}

	if f.sessionRoot != "" {
		if err := os.MkdirAll(f.sessionRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	core, err := f.buildCore(conf.Get("logger"))
	if err != nil {
		return nil, fmt.Errorf("build logger %q: %w", name, err)
	}

	logger := zap.New(core,
		zap.AddCaller(),
		zap.ErrorOutput(f.stderrSink),
	).Named(name)

	var path string
	if f.sessionRoot != "" {
		path = filepath.Join(f.sessionRoot, name)
	}
	adapter := NewAdapter(logger, name, path, DefaultSpaces)
	f.loggers[name] = adapter
	return adapter, nil
}

func (f *Factory) buildCore(conf settings.Value) (zapcore.Core, error) {
	var cores []zapcore.Core

	if stream := conf.Get("stream"); stream.Truthy() {
		cfg := readSinkConfig(stream)
		cores = append(cores, cfg.core(f.stdoutSink))
	}

	if file := conf.Get("file"); file.Truthy() {
		out, err := f.openFile(textLogName, true)
		if err != nil {
			return nil, err
		}
		cores = append(cores, readSinkConfig(file).core(out))
	}

	if tsv := conf.Get("tsv"); tsv.Truthy() {
		out, err := f.openFile(tsvLogName, false)
		if err != nil {
			return nil, err
		}
		cfg := readSinkConfig(tsv)
		cfg.format = strings.ReplaceAll(cfg.format, parentPIDToken, strconv.Itoa(os.Getppid()))
		cores = append(cores, cfg.literalCore("tsv", out, f.reporter))
	}

	if len(cores) == 0 {
		cores = append(cores, sinkConfig{level: Warn, format: defaultFormat}.core(f.stderrSink))
	}
	return zapcore.NewTee(cores...), nil
}

// openFile opens a session file once per factory in append mode. The text
// log gets a blank separator line when it is first opened.
func (f *Factory) openFile(name string, separator bool) (zapcore.WriteSyncer, error) {
	if f.sessionRoot == "" {
		return nil, ErrNoLogsDir
	}
	path := filepath.Join(f.sessionRoot, name)
	if out, ok := f.writers[path]; ok {
		return out, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if separator {
		if _, err := file.WriteString("\n"); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write separator to %s: %w", path, err)
		}
	}
	out := zapcore.Lock(file)
	f.files[path] = file
	f.writers[path] = out
	return out, nil
}

// Sync flushes every logger built so far.
func (f *Factory) Sync() error {
	var err error
	for _, adapter := range f.loggers {
		err = multierr.Append(err, ignoreSyncInvalid(adapter.Sync()))
	}
	return err
}

// Close flushes the loggers and closes the session files. Loggers must not
// be used afterwards.
func (f *Factory) Close() error {
	err := f.Sync()
	for path, file := range f.files {
		err = multierr.Append(err, file.Close())
		delete(f.files, path)
		delete(f.writers, path)
	}
	return err
}

// ignoreSyncInvalid drops the error returned when syncing a terminal or pipe.
func ignoreSyncInvalid(err error) error {
	var combined error
	for _, e := range multierr.Errors(err) {
		if pe, ok := e.(*os.PathError); ok && pe.Op == "sync" {
			continue
		}
		combined = multierr.Append(combined, e)
	}
	return combined
}
