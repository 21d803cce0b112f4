package util

import (
	"os"
	"strings"
)

// IsVerbose checks if METER_VERBOSE environment variable is set.
// Accepts: "1", "true", "yes" (case-insensitive)
func IsVerbose() bool {
	switch strings.ToLower(os.Getenv("METER_VERBOSE")) {
	case "1", "true", "yes":
		return true
	}
	return false
}
