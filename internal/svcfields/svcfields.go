package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags.
const SubsystemKey = pslog.TrustedString("sys")

// FontKey is the canonical key for font identity tags.
const FontKey = pslog.TrustedString("font")

// WithSubsystem attaches a subsystem tag to every log entry.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// WithFont attaches the font identity tag to every log entry.
func WithFont(logger pslog.Logger, font string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if strings.TrimSpace(font) == "" {
		return logger
	}
	return logger.With(FontKey, font)
}
