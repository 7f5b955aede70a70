// Package modelname classifies the two shapes a logical model identifier
// can take: a namespaced base identifier (never versioned) or a bare custom
// identifier (versioned via the metadata store).
package modelname

import "strings"

// IsBase reports whether name is a base identifier (contains a namespace
// separator). Base identifiers are never versioned.
func IsBase(name string) bool {
	return strings.Contains(name, "/")
}

// IsCustom reports whether name is a custom (fine-tuned) identifier that
// requires version resolution.
func IsCustom(name string) bool {
	return !IsBase(name)
}

// ObjectPath returns the artifact's relative path under the object store
// prefix for a base identifier, replacing the namespace separator with a
// hyphen per §6's persisted-state layout.
func ObjectPath(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}
