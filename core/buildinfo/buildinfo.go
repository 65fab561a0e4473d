// Package buildinfo carries version metadata stamped at link time:
//
//	go build -ldflags "-X 'github.com/m3rciful/claimdesk/core/buildinfo.Version=v0.4.0' \
//	  -X 'github.com/m3rciful/claimdesk/core/buildinfo.Commit=$(git rev-parse --short HEAD)' \
//	  -X 'github.com/m3rciful/claimdesk/core/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)'" ./cmd/claimdesk
package buildinfo

var (
	// Version is the release tag of the build.
	Version = "dev"
	// Commit is the source revision.
	Commit = "local"
	// Date is the RFC3339 build timestamp.
	Date = ""
)

// String renders the version line served by the health endpoint.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
