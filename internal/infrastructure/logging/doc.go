// Package logging provides structured logging for Smart Pot Core.
//
// It wraps log/slog with JSON (production) or text (development) output,
// level filtering and default service/version fields. A request-scoped
// logger can be carried through a context with WithContext and recovered
// with FromContext.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log passwords, bearer tokens, refresh tokens or the signing secret.
package logging
