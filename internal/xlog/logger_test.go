package xlog

import "testing"

func TestSubloggerJoinsPrefixes(t *testing.T) {
	l := Root.Sublogger("watchdir").Sublogger("installer")
	if l.prefix != "watchdir.installer" {
		t.Errorf("prefix = %q, want watchdir.installer", l.prefix)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	// None of these should panic.
	l.Warnf("x")
	l.Errorf("x")
	l.Debugf("x")
	l.Printf("x")
	if got := l.Sublogger("x"); got != nil {
		t.Errorf("Sublogger on a nil Logger = %v, want nil", got)
	}
}

func TestDebugfGatedByDebugEnabled(t *testing.T) {
	old := DebugEnabled
	defer func() { DebugEnabled = old }()

	DebugEnabled = false
	Root.Debugf("should not panic or need DebugEnabled true")
	DebugEnabled = true
	Root.Debugf("should not panic either")
}
