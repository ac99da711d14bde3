package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sink is the writer every logger writes through. Initialize retargets it, so
// component loggers created in package vars pick up the configured format.
var sink = &switchWriter{out: os.Stderr}

var (
	// Global logger instance
	Logger = zerolog.New(sink).With().Timestamp().Caller().Logger()
)

type switchWriter struct {
	mu  sync.RWMutex
	out io.Writer
}

func (w *switchWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.out.Write(p)
}

func (w *switchWriter) set(out io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = out
}

// Initialize sets up the global logger on stdout. format "json" writes structured
// lines, anything else writes the human readable console format.
func Initialize(logLevel string, format string) {
	InitializeWithWriter(logLevel, format, os.Stdout)
}

// InitializeWithWriter is Initialize writing to out.
func InitializeWithWriter(logLevel string, format string, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}
	if strings.EqualFold(format, "json") {
		output = out
	}
	sink.set(output)

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(logLevel)))
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Replace standard log with zerolog
	log.Logger = Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
