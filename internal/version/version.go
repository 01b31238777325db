// ABOUTME: Version and device identity reported in client/hello
// ABOUTME: Version is overridden at build time via -ldflags
package version

// Version is the software version, set with -ldflags "-X .../version.Version=x.y.z"
var Version = "dev"

const (
	// Product is the product name sent to relays
	Product = "Resonate Voice Player"

	// Manufacturer identifies the vendor
	Manufacturer = "Resonate"
)
