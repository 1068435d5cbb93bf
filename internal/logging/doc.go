// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Stdout output (JSON or console encoding)
//   - Automatic context field injection (trace_id, tenant, session, technique)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context. The fan-out dispatcher tags a request's context with
// WithSessionID once per Run call and WithTechnique once per per-technique
// goroutine, so every log line either of them or anything they call emits
// carries both without threading the values through every function call:
//
//	ctx := logging.WithSessionID(ctx, "sess_123")
//	ctx = logging.WithTechnique(ctx, "fusion")
//	logger.Info(ctx, "request processed", zap.Duration("duration", d))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-08-06T10:15:30Z",
//	  "level": "info",
//	  "msg": "request processed",
//	  "trace_id": "abc123",
//	  "session.id": "sess_123",
//	  "technique.name": "fusion",
//	  "duration": "45ms"
//	}
//
// # Configuration
//
// Config carries koanf tags, but nothing in ragbench loads it through the
// layered loader: internal/config has no logging section, and the CLI
// builds its logger from NewDefaultConfig unchanged. config.yaml entries
// and LOGGING_* environment variables do not affect logging.
//
// # Secret Redaction
//
// Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "auth received",
//	    logging.RedactedString("authorization", authHeader))
//
// # Sampling
//
// Sampling is split at the Error level:
//   - Error+: never sampled
//   - Everything below Error: one sampler using the Info entry of
//     Sampling.Levels (defaults: first 100 per tick, then 1 every 10)
//
// The Trace, Debug and Warn entries of Sampling.Levels are not consulted.
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
//
// # Performance
//
// Logging overhead: <1ms per entry in hot paths
// Zero allocations when level disabled
// Sampling reduces volume by ~90% in high-throughput scenarios
package logging
