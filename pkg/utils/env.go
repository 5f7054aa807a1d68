package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Env interface {
	uint | int | bool | string | time.Duration
}

// LookupEnv reads key as T, using defaultVal when key is unset. A missing
// required key or an unparsable value is an error.
func LookupEnv[T Env](key string, defaultVal string, required bool) (T, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		if required {
			var zero T

			return zero, fmt.Errorf("env %s is required", key)
		}

		val = defaultVal
	}

	parsed, err := parseEnv[T](val)
	if err != nil {
		return parsed, fmt.Errorf("error: parsing env %s=%s: %w", key, val, err)
	}

	return parsed, nil
}

// GetEnv is LookupEnv for package level configuration: it panics on error.
func GetEnv[T Env](key string, defaultVal string, required bool) T {
	val, err := LookupEnv[T](key, defaultVal, required)
	if err != nil {
		panic(err.Error())
	}

	return val
}

func parseEnv[T Env](val string) (T, error) {
	var (
		retVal T
		err    error
	)

	switch ptr := any(&retVal).(type) {
	case *uint:
		var u uint64

		u, err = strconv.ParseUint(val, 10, 32)
		*ptr = uint(u)
	case *int:
		*ptr, err = strconv.Atoi(val)
	case *bool:
		*ptr, err = strconv.ParseBool(val)
	case *time.Duration:
		*ptr, err = time.ParseDuration(val)
	case *string:
		*ptr = val
	}

	return retVal, err
}
