package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyInput      = "input"
	KeyOutput     = "output"
	KeyPath       = "path"
	KeyPort       = "port"
	KeyOp         = "op"
	KeyTrigger    = "trigger"
	KeySession    = "session"
	KeyHash       = "hash"
	KeyBytes      = "bytes"
	KeyDurationMS = "duration_ms"
	KeyState      = "state"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Input(p string) slog.Attr       { return slog.String(KeyInput, p) }
func Output(p string) slog.Attr      { return slog.String(KeyOutput, p) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func Port(p int) slog.Attr           { return slog.Int(KeyPort, p) }
func Op(op string) slog.Attr         { return slog.String(KeyOp, op) }
func Session(id string) slog.Attr    { return slog.String(KeySession, id) }
func Hash(h string) slog.Attr        { return slog.String(KeyHash, h) }
func Bytes(n int) slog.Attr          { return slog.Int(KeyBytes, n) }
func State(s string) slog.Attr       { return slog.String(KeyState, s) }
func Trigger(t time.Time) slog.Attr  { return slog.String(KeyTrigger, t.Format("15:04:05")) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
