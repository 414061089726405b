// Package logger provides structured logging backed by zerolog.
//
// Loggers are scoped by component and accept optional field maps:
//
//	log := logger.WithComponent("httpclient")
//	log.Debug("cache hit", logger.Fields(logger.FieldAuthority, "https://example.com:443"))
//
// A zero-cost logger for tests and embedded use is available via Nop.
package logger
