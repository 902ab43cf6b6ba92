/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

// PrefixedLogger prepends a fixed text to every message, e.g. "scheduler[musicbrainz]: ".
type PrefixedLogger struct {
	delegate FieldLogger
	prefix   string
}

// NewPrefixedLogger wraps delegate so that every message starts with prefix.
func NewPrefixedLogger(delegate FieldLogger, prefix string) FieldLogger {
	return &PrefixedLogger{delegate: delegate, prefix: prefix}
}

func (l *PrefixedLogger) With(fields ...Field) FieldLogger {
	return &PrefixedLogger{delegate: l.delegate.With(fields...), prefix: l.prefix}
}

func (l *PrefixedLogger) WithLevel(level Level) FieldLogger {
	return &PrefixedLogger{delegate: l.delegate.WithLevel(level), prefix: l.prefix}
}

func (l *PrefixedLogger) Debug(msg string, fields ...Field) { l.delegate.Debug(l.prefix+msg, fields...) }

func (l *PrefixedLogger) Info(msg string, fields ...Field) { l.delegate.Info(l.prefix+msg, fields...) }

func (l *PrefixedLogger) Warn(msg string, fields ...Field) { l.delegate.Warn(l.prefix+msg, fields...) }

func (l *PrefixedLogger) Error(msg string, fields ...Field) { l.delegate.Error(l.prefix+msg, fields...) }
