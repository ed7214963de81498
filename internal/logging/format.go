package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	defaultFormat  = "%(message)s"
	parentPIDToken = "%(parent_pid)d"
)

var (
	bufferPool   = buffer.NewPool()
	tokenPattern = regexp.MustCompile(`%%|%\((\w+)\)([-#0 +]*\d*(?:\.\d+)?)([sdifrxXoeEgG])`)
)

// formatPiece is either literal text or a %(token) substitution.
type formatPiece struct {
	literal string
	token   string
	flags   string
	verb    byte
}

// recordFormat is a compiled printf-style record layout such as
// "%(asctime)s %(levelname)-8s %(name)s: %(message)s".
type recordFormat []formatPiece

func parseFormat(format string) recordFormat {
	if format == "" {
		format = defaultFormat
	}
	var out recordFormat
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(format, -1) {
		if m[0] > last {
			out = append(out, formatPiece{literal: format[last:m[0]]})
		}
		if format[m[0]:m[1]] == "%%" {
			out = append(out, formatPiece{literal: "%"})
		} else {
			out = append(out, formatPiece{
				token: format[m[2]:m[3]],
				flags: format[m[4]:m[5]],
				verb:  format[m[6]],
			})
		}
		last = m[1]
	}
	if last < len(format) {
		out = append(out, formatPiece{literal: format[last:]})
	}
	return out
}

// record carries what a format can reference for one entry.
type record struct {
	entry   zapcore.Entry
	asctime string
	pid     int
	ppid    int
}

func (r record) lookup(token string) (any, bool) {
	ent := r.entry
	switch token {
	case "message":
		return ent.Message, true
	case "name":
		return ent.LoggerName, true
	case "levelname":
		return fromZap(ent.Level).String(), true
	case "levelno":
		return int(fromZap(ent.Level)), true
	case "asctime":
		return r.asctime, true
	case "created":
		return float64(ent.Time.UnixNano()) / float64(time.Second), true
	case "msecs":
		return ent.Time.Nanosecond() / int(time.Millisecond), true
	case "process":
		return r.pid, true
	case "parent_pid":
		return r.ppid, true
	case "pathname":
		return ent.Caller.File, true
	case "filename":
		return filepath.Base(ent.Caller.File), true
	case "module":
		base := filepath.Base(ent.Caller.File)
		return strings.TrimSuffix(base, filepath.Ext(base)), true
	case "lineno":
		return ent.Caller.Line, true
	case "funcName":
		fn := ent.Caller.Function
		if i := strings.LastIndex(fn, "."); i >= 0 {
			fn = fn[i+1:]
		}
		return fn, true
	}
	return nil, false
}

func (f recordFormat) render(buf *buffer.Buffer, rec record) {
	for _, p := range f {
		if p.token == "" {
			buf.AppendString(p.literal)
			continue
		}
		value, ok := rec.lookup(p.token)
		if !ok {
			// unknown tokens are kept verbatim
			buf.AppendString("%(" + p.token + ")" + p.flags + string(p.verb))
			continue
		}
		buf.AppendString(formatValue(p.flags, p.verb, value))
	}
}

func formatValue(flags string, verb byte, value any) string {
	switch verb {
	case 'd', 'i':
		if _, ok := value.(int); ok {
			return fmt.Sprintf("%"+flags+"d", value)
		}
	case 'x', 'X', 'o':
		if _, ok := value.(int); ok {
			return fmt.Sprintf("%"+flags+string(verb), value)
		}
	case 'f', 'e', 'E', 'g', 'G':
		switch v := value.(type) {
		case float64:
			return fmt.Sprintf("%"+flags+string(verb), v)
		case int:
			return fmt.Sprintf("%"+flags+string(verb), float64(v))
		}
	case 'r':
		return fmt.Sprintf("%"+flags+"q", fmt.Sprint(value))
	}
	return fmt.Sprintf("%"+flags+"v", value)
}

// dateFormat renders asctime with a strftime pattern, falling back to
// "2006-01-02 15:04:05,000" when the pattern is empty or invalid.
type dateFormat struct {
	pattern *strftime.Strftime
}

func newDateFormat(datefmt string) dateFormat {
	if datefmt == "" {
		return dateFormat{}
	}
	p, err := strftime.New(datefmt, strftime.WithMilliseconds('L'))
	if err != nil {
		return dateFormat{}
	}
	return dateFormat{pattern: p}
}

func (d dateFormat) format(t time.Time) string {
	if d.pattern != nil {
		return d.pattern.FormatString(t)
	}
	return fmt.Sprintf("%s,%03d", t.Format(time.DateTime), t.Nanosecond()/int(time.Millisecond))
}

// formatEncoder is a zapcore.Encoder writing one formatted line per entry.
// Structured fields, from With or from the call, follow the line as
// " key=value" pairs sorted by key. A literal encoder quotes field values
// and the stack so that an entry always stays on one line.
type formatEncoder struct {
	*zapcore.MapObjectEncoder
	layout  recordFormat
	dates   dateFormat
	pid     int
	ppid    int
	literal bool
}

func newFormatEncoder(format, datefmt string) *formatEncoder {
	return &formatEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		layout:           parseFormat(format),
		dates:            newDateFormat(datefmt),
		pid:              os.Getpid(),
		ppid:             os.Getppid(),
	}
}

func (e *formatEncoder) Clone() zapcore.Encoder {
	fields := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		fields.Fields[k] = v
	}
	return &formatEncoder{
		MapObjectEncoder: fields,
		layout:           e.layout,
		dates:            e.dates,
		pid:              e.pid,
		ppid:             e.ppid,
		literal:          e.literal,
	}
}

func (e *formatEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := bufferPool.Get()
	e.layout.render(buf, record{
		entry:   ent,
		asctime: e.dates.format(ent.Time),
		pid:     e.pid,
		ppid:    e.ppid,
	})

	extra := e.MapObjectEncoder
	if len(fields) > 0 {
		extra = zapcore.NewMapObjectEncoder()
		for k, v := range e.Fields {
			extra.Fields[k] = v
		}
		for _, field := range fields {
			field.AddTo(extra)
		}
	}
	if len(extra.Fields) > 0 {
		keys := make([]string, 0, len(extra.Fields))
		for k := range extra.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.appendField(buf, k, fmt.Sprint(extra.Fields[k]))
		}
	}

	if ent.Stack != "" {
		if e.literal {
			e.appendField(buf, "stack", ent.Stack)
		} else {
			buf.AppendByte('\n')
			buf.AppendString(ent.Stack)
		}
	}
	buf.AppendByte('\n')
	return buf, nil
}

func (e *formatEncoder) appendField(buf *buffer.Buffer, key, value string) {
	if e.literal {
		if strings.ContainsFunc(key, isBreaking) {
			key = strconv.Quote(key)
		}
		value = strconv.Quote(value)
	}
	buf.AppendByte(' ')
	buf.AppendString(key)
	buf.AppendByte('=')
	buf.AppendString(value)
}

// isBreaking reports runes that would split a tab-separated record.
func isBreaking(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r'
}
