// Package nlog is the runtime's own logger: leveled, timestamped, and
// driven by the TEN_LOG_LEVEL environment knob (spec.md §6). It mirrors
// the teacher's cmn/nlog in spirit -- a small package-level logger rather
// than a pulled-in logging framework, since nothing in the retrieved pack
// reaches for a third-party logger for this kind of low-allocation,
// library-embeddable logging.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelVerbose Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "VERBOSE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

var (
	mu       sync.Mutex
	out      io.Writer = os.Stderr
	minLevel           = defaultLevel()
)

// defaultLevel resolves the Open Question in spec.md §9 ("whether release
// builds should default to INFO or DEBUG"): INFO, overridable via
// TEN_LOG_LEVEL. See DESIGN.md "Open Question decisions" #1.
func defaultLevel() Level {
	switch strings.ToUpper(os.Getenv("TEN_LOG_LEVEL")) {
	case "VERBOSE":
		return LevelVerbose
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SetOutput redirects log output; used by tests to capture log lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

func log(l Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < minLevel {
		return
	}
	ts := time.Now().Format("15:04:05.000000")
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	fmt.Fprintf(out, "%c %s %s\n", l.String()[0], ts, msg)
}

func Verbosef(format string, args ...any) { log(LevelVerbose, format, args...) }
func Debugf(format string, args ...any)   { log(LevelDebug, format, args...) }
func Infof(format string, args ...any)    { log(LevelInfo, format, args...) }
func Warnf(format string, args ...any)    { log(LevelWarn, format, args...) }
func Errorf(format string, args ...any)   { log(LevelError, format, args...) }

func Infoln(args ...any)  { log(LevelInfo, "%s", fmt.Sprintln(args...)) }
func Warnln(args ...any)  { log(LevelWarn, "%s", fmt.Sprintln(args...)) }
func Errorln(args ...any) { log(LevelError, "%s", fmt.Sprintln(args...)) }

func Fatalf(format string, args ...any) {
	log(LevelFatal, format, args...)
	os.Exit(1)
}
