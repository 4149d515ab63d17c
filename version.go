// Package influxmcp carries the release version of the influx-mcp server.
package influxmcp

// Version is the current release.
const Version = "1.0.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
