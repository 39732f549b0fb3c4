// ABOUTME: Version information for Lumen
// ABOUTME: Reported to nodes in handshakes and shown in logs
package version

const (
	// Product is the show player's product name
	Product = "Lumen Show Player"

	// NodeProduct is the LED node's product name
	NodeProduct = "Lumen Node"

	// Manufacturer is the manufacturer name
	Manufacturer = "Lumen"

	// Version is the software version, semver without a leading "v"
	Version = "0.1.0"
)
