package svcrun

// Version is the current version of the go-svcrun library
const Version = "0.3.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Runtime names the scheduling substrate services run on
	Runtime string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version: Version,
		Runtime: "stopper",
	}
}
