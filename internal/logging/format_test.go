package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var fixedTime = time.Date(2024, 11, 1, 12, 30, 45, 123*int(time.Millisecond), time.UTC)

func testEntry(msg string) zapcore.Entry {
	return zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       fixedTime,
		LoggerName: "svc",
		Message:    msg,
		Caller: zapcore.EntryCaller{
			Defined:  true,
			File:     "/src/app/main.go",
			Line:     42,
			Function: "github.com/acme/app.run",
		},
	}
}

func encode(t *testing.T, enc zapcore.Encoder, ent zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(ent, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestFormatTokens(t *testing.T) {
	t.Parallel()

	enc := newFormatEncoder("%(levelname)-8s|%(name)s|%(filename)s:%(lineno)d|%(funcName)s|%(module)s|%(levelno)d|%%|%(bogus)s|%(message)r", "")
	got := encode(t, enc, testEntry("hi"))

	assert.Equal(t, "INFO    |svc|main.go:42|run|main|20|%|%(bogus)s|\"hi\"\n", got)
}

func TestFormatDates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2024-11-01 12:30:45,123", newDateFormat("").format(fixedTime))
	assert.Equal(t, "2024-11-01 12:30:45", newDateFormat("%Y-%m-%d %H:%M:%S").format(fixedTime))
	assert.Equal(t, "12:30:45.123", newDateFormat("%H:%M:%S.%L").format(fixedTime))

	enc := newFormatEncoder("[%(asctime)s] %(message)s", "%d/%m/%y")
	assert.Equal(t, "[01/11/24] hi\n", encode(t, enc, testEntry("hi")))
}

func TestFormatAppendsFields(t *testing.T) {
	t.Parallel()

	enc := newFormatEncoder("", "")
	withFields := enc.Clone()
	zap.String("component", "api").AddTo(withFields)

	assert.Equal(t, "hi a=1 b=2\n", encode(t, enc, testEntry("hi"), zap.String("b", "2"), zap.Int("a", 1)))
	assert.Equal(t, "hi component=api\n", encode(t, withFields, testEntry("hi")))
	assert.Equal(t, "hi\n", encode(t, enc, testEntry("hi")))
}

func TestParseFormatDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, recordFormat{{token: "message", verb: 's'}}, parseFormat(""))
	assert.Equal(t, recordFormat{{literal: "plain text"}}, parseFormat("plain text"))
}
