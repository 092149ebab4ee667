package chunk

// State is the tag carried by every chunk in a List
type State uint8

const (
	// StateFree chunks are available for allocation
	StateFree State = iota
	// StateUsed chunks are allocated and counted as used memory
	StateUsed
	// StateLocked chunks are allocated but excluded from accounting. They are never merged with
	// neighbors and must be unlocked before they can be freed.
	StateLocked
)

var stateMapping = map[State]string{
	StateFree:   "Free",
	StateUsed:   "Used",
	StateLocked: "Locked",
}

func (s State) String() string {
	return stateMapping[s]
}
