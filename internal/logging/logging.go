// Package logging configures the process-wide zerolog logger and hands out
// component-scoped child loggers, the way the teacher's
// middleware.SetupLogger does for its HTTP server.
package logging

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. In production it writes
// structured JSON to stdout; in every other env it writes a colorized
// console stream.
func Setup(level, env string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	var writer = os.Stdout
	logger := zerolog.New(writer).With().Timestamp().Caller()

	if env != "production" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}).With().Timestamp().Caller().Logger()
	} else {
		log.Logger = logger.Logger()
	}

	log.Info().Str("level", logLevel.String()).Str("env", env).Msg("logger initialized")
}

// ForComponent returns a child logger tagged with the given component name,
// used by every package (httpcache, kvstore, season, render, plugin, ...)
// so log lines can be filtered by subsystem.
func ForComponent(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// HTTPMiddleware logs each diagnostics-endpoint request, mirroring the
// teacher's Logger middleware.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		event := log.Info()
		if ww.Status() >= 400 {
			event = log.Error()
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("http request")
	})
}
