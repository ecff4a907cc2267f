// Package logx configures avtopost's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps console
// output readable (short timestamp + short caller) while leaving fields
// structured for JSON sinks.
package logx
