// ABOUTME: Build and product identification
// ABOUTME: Version is overridden at link time with -ldflags "-X"
package version

// Version is the release version, "dev" for local builds
var Version = "dev"

const (
	// Product is advertised over mDNS and reported by the control API
	Product = "Resonate Recorder"
	// Manufacturer is advertised over mDNS
	Manufacturer = "Resonate"
)
