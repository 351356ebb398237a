// Package version хранит сведения о сборке ordercore.
package version

import "fmt"

// Заполняются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию сборки. Её же отдаёт /healthz.
func GetVersion() string { return version }

// GetCommit возвращает хеш коммита.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// String форматирует сведения о сборке для orderctl version.
func String() string {
	return fmt.Sprintf("ordercore version=%s commit=%s date=%s", version, commit, date)
}
