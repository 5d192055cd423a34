// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder (coloured on terminals),
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every pipeline phase receives a context and extracts the logger from it, so
// artifact identity and phase travel with each log line.
package logger
