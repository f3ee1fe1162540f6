package types

// Version is embedded into the health response and the CLI version output.
// Overridden at build time via -ldflags.
var Version = "0.1.0"

const (
	// DefaultIndexURL is the upload endpoint used when a manifest does not
	// pin its own index.
	DefaultIndexURL = "https://upload.pypi.org/legacy/"

	// DefaultManifestName is the pipeline manifest looked up in the root of
	// a checked-out source tree.
	DefaultManifestName = "slipway.hcl"
)
