package vfs

import "github.com/sirupsen/logrus"

// logger is shared by the whole package. Delivery and teardown paths log here; the
// hot read/write paths never do.
var logger logrus.FieldLogger = logrus.StandardLogger().WithField("library", "vfs")

// SetLogger replaces the package logger, e.g. to route into an application wide
// logrus instance. A nil value is ignored.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		logger = l
	}
}

func debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}
