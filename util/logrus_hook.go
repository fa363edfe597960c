package util

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SentryHook forwards error and above entries to sentry.
type SentryHook struct{}

var levels = []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}

func (h *SentryHook) Levels() []logrus.Level {
	return levels
}

func (h *SentryHook) Fire(entry *logrus.Entry) error {
	sentry.WithScope(func(scope *sentry.Scope) {
		for key, value := range entry.Data {
			scope.SetExtra(key, fmt.Sprintf("%v", value))
		}
		sentry.CaptureMessage(entry.Message)
	})
	return nil
}
