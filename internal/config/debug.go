package config

import "os"

// IsDebug and IsLogJSON are read before the logger exists, so they bypass env.Parse.
func IsDebug() bool {
	return isTrue(os.Getenv("TUSK_DEBUG"))
}

func IsLogJSON() bool {
	return isTrue(os.Getenv("TUSK_LOG_JSON"))
}

func isTrue(v string) bool {
	return v == "1" || v == "true"
}
