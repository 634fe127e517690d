package version

// Version is the current release of the bridge.
const Version = "0.1.0"

// BuildVersion returns the version string for display in the CLI.
func BuildVersion() string {
	return "browserbridge version " + Version
}
