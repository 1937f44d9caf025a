// Package tracing wires the optional Langfuse callback handler into the
// eino model pipeline so every LLM generation is traced end to end.
package tracing

import (
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/sme-labs/sme-go/internal/version"
)

// traceName labels every trace emitted by the engine in the Langfuse UI.
const traceName = "sme"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. Returns a flush function that must be called
// before process exit to ensure all traces are sent. If Langfuse is not
// configured, both return values are nil and tracing is silently disabled.
//
// Optional tuning:
//
//	LANGFUSE_HOST            (default: http://localhost:3000)
//	LANGFUSE_SAMPLE_RATE     fraction of traces to send, 0 < r <= 1 (default: 1)
//	LANGFUSE_FLUSH_INTERVAL  Go duration, e.g. 2s (default: library default)
func Setup() (callbacks.Handler, func(), bool) {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:          host,
		PublicKey:     publicKey,
		SecretKey:     secretKey,
		Name:          traceName,
		Release:       version.Version,
		Tags:          []string{"signal-memory-engine"},
		SampleRate:    sampleRate(),
		FlushInterval: flushInterval(),
	})

	return handler, flusher, true
}

// sampleRate reads LANGFUSE_SAMPLE_RATE, rejecting values outside (0, 1].
// Zero leaves the library's default (send everything) in effect.
func sampleRate() float64 {
	v := os.Getenv("LANGFUSE_SAMPLE_RATE")
	if v == "" {
		return 0
	}
	r, err := strconv.ParseFloat(v, 64)
	if err != nil || r <= 0 || r > 1 {
		return 0
	}
	return r
}

// flushInterval reads LANGFUSE_FLUSH_INTERVAL as a Go duration. Zero leaves
// the library's default in effect.
func flushInterval() time.Duration {
	v := os.Getenv("LANGFUSE_FLUSH_INTERVAL")
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
