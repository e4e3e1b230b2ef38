package env

import "os"

// Get returns the value of the given environment variable, or the fallback
// when it is unset or blank. Blank counts as unset so compose files can leave
// optional vars empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
