package defrag

import (
	"github.com/nitroengine/vramkit/memutils/chunk"
)

// DefragmentationMove describes one allocation that changes address during a run
type DefragmentationMove[P any] struct {
	Size     int
	Src      chunk.Address[P]
	Dst      chunk.Address[P]
	UserData any
}
