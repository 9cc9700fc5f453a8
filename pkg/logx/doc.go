// Package logx configures relaybot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps console
// output readable (short timestamp + short caller) and file output
// JSON-structured. The zero Logger value is a safe no-op, which keeps
// constructors usable in tests without wiring a sink.
package logx
