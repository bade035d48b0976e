package goboreal

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	log := CreateDefaultLogger()
	assertEqualE(t, log.GetLogLevel(), "error")
	assertNilF(t, log.SetLogLevel("debug"))
	assertEqualE(t, log.GetLogLevel(), "debug")
	assertNotNilF(t, log.SetLogLevel("unknown"))
}

func TestLogWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := CreateDefaultLogger()
	log.SetOutput(&buf)
	assertNilF(t, log.SetLogLevel("info"))

	ctx := context.WithValue(context.Background(), BSessionIDKey, "sess-1")
	ctx = context.WithValue(ctx, BStatementIDKey, "stmt-9")
	log.WithContext(ctx).Info("hello")

	out := buf.String()
	assertTrueE(t, strings.Contains(out, "sess-1"), "session id should be logged")
	assertTrueE(t, strings.Contains(out, "stmt-9"), "statement id should be logged")
}

func TestLogKeysAbsentFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := CreateDefaultLogger()
	log.SetOutput(&buf)
	assertNilF(t, log.SetLogLevel("info"))

	log.WithContext(context.Background()).Info("plain")
	assertFalseE(t, strings.Contains(buf.String(), string(BSessionIDKey)), "no driver fields expected")
}
