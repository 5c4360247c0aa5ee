// Package version carries build information injected with -ldflags.
package version

import "fmt"

// Set with -ldflags "-X github.com/robotalks/l0link/pkg/version.GitRevision=..."
var (
	// Version is the release version.
	Version = "0.1.0"
	// GitRevision is the git describe output of the build tree.
	GitRevision = "unknown"
	// Dirty is "true" when the build tree had local modifications.
	Dirty = "true"
)

// Product is the product name.
const Product = "l0link"

// RevisionBytes returns the first 10 bytes of GitRevision, zero padded.
func RevisionBytes() (b [10]byte) {
	copy(b[:], GitRevision)
	return
}

// IsDirty reports whether the build is from a modified or unknown tree.
func IsDirty() bool {
	return Dirty == "true" || GitRevision == "unknown"
}

// ProductDescription is reported as the USB product string.
func ProductDescription() string {
	return fmt.Sprintf("%s (%s)", Product, GitRevision)
}
