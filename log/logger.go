// Package log holds the component loggers of the simulator.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Component loggers. They discard everything until Init is called.
var (
	Root   = zerolog.Nop()
	Decode = zerolog.Nop()
	ROB    = zerolog.Nop()
	Core   = zerolog.Nop()
)

// Options for Init
type Options struct {
	// LogLevel defaults to Info when parsed from an empty string.
	LogLevel zerolog.Level
	Type     LoggerType
	// Out defaults to os.Stderr.
	Out io.Writer
}

func ParseLogLevel(loglevel string) (zerolog.Level, error) {
	if loglevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(loglevel)
}

func Init(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	switch opts.Type {
	case ConsoleLogger:
		Root = zerolog.New(newConsoleWriter(out)).Level(opts.LogLevel)
	default:
		Root = zerolog.New(out).Level(opts.LogLevel)
	}

	Decode = Root.With().Str("component", "decode").Logger()
	ROB = Root.With().Str("component", "rob").Logger()
	Core = Root.With().Str("component", "core").Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true}
	cw.PartsExclude = []string{zerolog.TimestampFieldName}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}

	return cw
}
