// Package logging is a thin layer over log/slog so every component logs
// through one pipeline with the same default fields.
//
// New builds a logger from LoggingConfig: JSON or text format, stdout or
// stderr, level filtering, and service/version attached to every entry.
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8090)
//	logger.Error("poll failed", "device", id, "error", err)
//
// Never log secrets, tokens, passwords, or API keys. When a credential
// must be identified, log a redacted prefix:
//
//	logger.Info("API key used", "key_prefix", key[:8]+"...")
package logging
