// Package env holds the one-off environment lookups that happen before the
// typed config is loaded, such as picking the bootstrap log level.
package env

import "os"

// Get reads an environment variable, falling back when it is unset or blank.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
