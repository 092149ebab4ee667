//go:build debug_mem_utils

package memutils

// DebugValidate runs Validate on a pool after each mutation and panics on the first inconsistency.
// Builds without the debug_mem_utils tag compile it to nothing.
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
