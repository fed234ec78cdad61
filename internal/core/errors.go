package core

import "errors"

// Fault codes reported to the telemetry sink.
const (
	// CodeSourceAbsent marks a base-acquisition source that had no usable
	// data; recoverable, the chain falls through to the next source.
	CodeSourceAbsent = "source_absent"
	// CodeTransportFailure marks a failed network round trip; the cycle ends
	// without mutating persisted state and the next request retries.
	CodeTransportFailure = "transport_failure"
	// CodeFingerprintMismatch marks a glyph bundle signed for a different
	// font generation; fatal to the cached generation.
	CodeFingerprintMismatch = "fingerprint_mismatch"
	// CodeInjectionFailed marks a glyph injection that failed after the
	// single self-healing retry; fatal to the cached generation.
	CodeInjectionFailed = "injection_failed"
	// CodePersistFailure marks a best-effort persistence write that failed;
	// the in-memory result stays valid.
	CodePersistFailure = "persist_failure"
	// CodeLockFailed marks a serializer hand-off failure; the cycle aborts
	// without ever holding the cycle lock.
	CodeLockFailed = "lock_failed"
)

// ErrClosed is returned when operations are submitted to a closed manager.
var ErrClosed = errors.New("glyphd: manager closed")

// ErrNoBase is returned when font bytes are requested before any base
// acquisition has completed.
var ErrNoBase = errors.New("glyphd: base font not acquired")

// Failure is a classified fault tied to a font instance.
type Failure struct {
	Code   string
	Font   FontIdentity
	Detail string
}

func (f Failure) Error() string {
	if f.Detail == "" {
		return "glyphd: " + f.Code + " (" + f.Font.String() + ")"
	}
	return "glyphd: " + f.Code + " (" + f.Font.String() + "): " + f.Detail
}
