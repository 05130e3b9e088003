package instance

import "os"

// idVars are checked in order; the first non-empty value names the process.
var idVars = []string{"STOREFRONT_INSTANCE_ID", "DYNO", "HOSTNAME"}

// ID identifies this process in logs and cron lock diagnostics.
func ID() string {
	for _, key := range idVars {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}

// Port prefers the platform-assigned PORT over the configured one.
func Port(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return configured
}
