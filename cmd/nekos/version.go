package main

// version is set by the release build's -ldflags; "dev" otherwise,
// the same pattern tinyrange-cc's own cmd/* binaries use for their
// version strings.
var version = "dev"

func versionString() string {
	return "nekos " + version
}
