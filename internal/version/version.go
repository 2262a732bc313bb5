// Package version хранит сведения о сборке, задаваемые через -ldflags.
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// String используется как вывод foodiesctl --version.
func String() string {
	return fmt.Sprintf("%s (commit=%s date=%s)", version, commit, date)
}

// UserAgent подписывает исходящие запросы компонента, например "foodies-offline-client/1.2.0".
func UserAgent(component string) string {
	return fmt.Sprintf("foodies-%s/%s", component, version)
}

// Fields возвращает сведения о сборке для стартового лога.
func Fields() log.Fields {
	return log.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}
