package memutils

// Validatable is anything that can check its own bookkeeping, such as a chunk list or an engine
type Validatable interface {
	Validate() error
}
