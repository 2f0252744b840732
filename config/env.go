package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvInt reads an integer environment variable. The second return reports
// whether the variable was set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q is not an integer", name, raw)
	}
	return v, true, nil
}

// EnvString reads a string environment variable.
func EnvString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
