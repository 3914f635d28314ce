package logger

import (
	"sync"

	"github.com/kz/discordrus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

func Init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
}

func Get() *logrus.Logger {
	once.Do(func() {
		if logger == nil {
			Init()
		}
	})
	return logger
}

// Configure applies the log level and, when webhookURL is set, forwards
// error-level entries to a Discord webhook.
func Configure(l *logrus.Logger, level, webhookURL string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	l.SetLevel(lvl)

	if webhookURL != "" {
		l.AddHook(discordrus.NewHook(webhookURL, logrus.ErrorLevel, &discordrus.Opts{
			Username:        "remindme",
			TimestampFormat: "Jan 2 15:04:05.00000",
		}))
	}
	return nil
}
