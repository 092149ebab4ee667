package chunk

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/nitroengine/vramkit/memutils"
	"golang.org/x/exp/slog"
)

// ChunkInfo describes one chunk of a List
type ChunkInfo[P any] struct {
	Start    Address[P]
	End      Address[P]
	State    State
	UserData any
}

// Size returns the number of bytes covered by the chunk
func (i ChunkInfo[P]) Size() int {
	return i.End.Offset(i.Start)
}

// VisitAllChunks calls visit for every chunk in address order, stopping at the first error
func (l *List[P]) VisitAllChunks(visit func(info ChunkInfo[P]) error) error {
	if err := l.checkAlive(); err != nil {
		return err
	}

	for c := l.head; c != nil; c = c.next {
		err := visit(ChunkInfo[P]{
			Start:    c.start,
			End:      c.end,
			State:    c.state,
			UserData: c.userData,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Stats walks the list and returns its accounting. Locked bytes are reported separately and
// are not part of Total.
func (l *List[P]) Stats() memutils.Stats {
	var stats memutils.Stats
	if l.checkAlive() != nil {
		return stats
	}

	for c := l.head; c != nil; c = c.next {
		switch c.state {
		case StateFree:
			stats.Free += c.size()
		case StateUsed:
			stats.Used += c.size()
		case StateLocked:
			stats.Locked += c.size()
		}
	}

	stats.ComputeFreePercent()
	return stats
}

// IsEmpty reports whether the list holds no used or locked chunks
func (l *List[P]) IsEmpty() bool {
	return l.checkAlive() == nil && l.head == l.tail && l.head.state == StateFree
}

func (l *List[P]) AddStatistics(stats *memutils.Statistics) {
	if l.checkAlive() != nil {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += l.Size()
	for c := l.head; c != nil; c = c.next {
		if c.state == StateUsed {
			stats.AllocationCount++
			stats.AllocationBytes += c.size()
		}
	}
}

func (l *List[P]) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	if l.checkAlive() != nil {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += l.Size()
	for c := l.head; c != nil; c = c.next {
		switch c.state {
		case StateFree:
			stats.AddUnusedRange(c.size())
		case StateUsed:
			stats.AddAllocation(c.size())
		case StateLocked:
			stats.AddLockedRange(c.size())
		}
	}
}

// BlockJsonData writes the pool summary into an open JSON object
func (l *List[P]) BlockJsonData(json *jwriter.ObjectState) {
	stats := l.Stats()
	json.Name("Start").String(l.start.String())
	json.Name("End").String(l.end.String())
	json.Name("TotalBytes").Int(l.Size())
	json.Name("UnusedBytes").Int(stats.Free)
	json.Name("UsedBytes").Int(stats.Used)
	json.Name("LockedBytes").Int(stats.Locked)
	json.Name("FreePercent").Int(stats.FreePercent)
	json.Name("ChunkCount").Int(l.count)
}

// PrintDetailedMap writes the pool summary followed by every chunk. describe, if not nil, is
// called for each allocated chunk carrying user data so the owner can add its own fields.
func (l *List[P]) PrintDetailedMap(json *jwriter.ObjectState, describe func(json *jwriter.ObjectState, userData any)) {
	if l.checkAlive() != nil {
		return
	}

	l.BlockJsonData(json)

	arrayState := json.Name("Chunks").Array()
	defer arrayState.End()

	for c := l.head; c != nil; c = c.next {
		obj := arrayState.Object()
		obj.Name("Start").String(c.start.String())
		obj.Name("Size").Int(c.size())
		obj.Name("State").String(c.state.String())

		if c.state != StateFree && c.userData != nil && describe != nil {
			describe(&obj, c.userData)
		}
		obj.End()
	}
}

// DebugLogAllAllocations calls logFunc for every chunk that is still allocated. It is used to
// report leaks when a pool is torn down.
func (l *List[P]) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, address Address[P], size int, state State, userData any)) {
	if l.checkAlive() != nil {
		return
	}

	for c := l.head; c != nil; c = c.next {
		if c.state != StateFree {
			logFunc(logger, c.start, c.size(), c.state, c.userData)
		}
	}
}
