// Package logging configures the structured logger shared by every
// daemon component, built on github.com/sirupsen/logrus the way the
// pack's other mail daemons do.
package logging

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
)

// New builds a logrus.Logger configured per the daemon's config:
// structured (not plain-text) fields, optionally also forwarded to
// syslog.
func New(useSyslog bool) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if useSyslog {
		hook, err := logrus_syslog.NewSyslogHook("", "", syslog.LOG_MAIL, "postsrsd")
		if err != nil {
			return nil, err
		}
		log.AddHook(hook)
	}
	return log, nil
}

// ForLookup returns an entry carrying the fields every query-kind log
// line starts from: the query kind and the input address. Callers add
// either the rewritten result or the reason it was not rewritten.
func ForLookup(log *logrus.Logger, query, address string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"query":   query,
		"address": address,
	})
}
