package version

// Current is the release version, semver without a "v" prefix.
const Current = "0.1.0"
