// Package logging provides the shared logrus logger used across paperchat.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// NewLogger returns an entry tagged with the component name.
func NewLogger(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// SetVerbose switches the shared logger between warn and debug level.
func SetVerbose(verbose bool) {
	if verbose {
		base.SetLevel(logrus.DebugLevel)
		return
	}
	base.SetLevel(logrus.WarnLevel)
}

// SetJSON selects the JSON formatter, used when logs are consumed by tools.
func SetJSON() {
	base.SetFormatter(&logrus.JSONFormatter{})
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// Discard returns an entry that drops everything, for tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
