package util

import (
	"os"
	"strings"
)

var hostname = os.Hostname

// HostIdentity returns $HOSTNAME, falling back to the kernel hostname and
// finally to "unknown". Consumer ids derive from it so a restarted process
// keeps its identity.
func HostIdentity() string {
	if h := strings.TrimSpace(os.Getenv("HOSTNAME")); h != "" {
		return h
	}
	if h, err := hostname(); err == nil && strings.TrimSpace(h) != "" {
		return strings.TrimSpace(h)
	}
	return "unknown"
}

// GenerateConsumerID returns the default consumer name for this host.
func GenerateConsumerID() string {
	return "consumer_" + HostIdentity()
}
