package version

import "fmt"

// version is overridable at build time via:
//
//	go build -ldflags "-X github.com/Chronic700/Agent-Connect/internal/version.version=x.y.z"
var version = "0.1.0"

const product = "AgentConnect"

func Version() string {
	return version
}

// UserAgent returns the product token sent on outbound webhook requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", product, version)
}
