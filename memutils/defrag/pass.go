package defrag

// DefragmentationStats summarizes a defragmentation run
type DefragmentationStats struct {
	// BytesMoved is the number of bytes copied to a new address
	BytesMoved int
	// AllocationsMoved is the number of allocations that changed address
	AllocationsMoved int
	// ScratchBytes is the size of the staging buffer the run required
	ScratchBytes int
}

func (s *DefragmentationStats) Add(other DefragmentationStats) {
	s.BytesMoved += other.BytesMoved
	s.AllocationsMoved += other.AllocationsMoved
	s.ScratchBytes += other.ScratchBytes
}
