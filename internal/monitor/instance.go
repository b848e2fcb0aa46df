package monitor

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

const appID = "signal-engine"

// InstanceID returns a stable, app-scoped machine identifier, falling back
// to the hostname where the machine id is unreadable (e.g. some containers).
func InstanceID() string {
	if id, err := machineid.ProtectedID(appID); err == nil {
		if len(id) > 12 {
			id = id[:12]
		}
		return id
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}
