package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/nitroengine/vramkit/memutils/chunk"
	"golang.org/x/exp/slog"
)

const stressSlots = 32

type stressPool struct{}

type stressAddress = chunk.Address[stressPool]

// lcg is the linear congruential generator the stress sequence is defined by, so runs with the same
// seed always make the same requests
type lcg struct {
	next uint32
}

func (r *lcg) Int() int {
	r.next = r.next*1103515245 + 12345
	return int((r.next / 65536) % 32768)
}

// StressCmd allocates and frees random sizes from both ends of a pool, validating the chunk list
// after every step.
type StressCmd struct {
	Iterations int    `default:"500000" help:"Number of allocate or free steps."`
	Seed       uint32 `default:"1" help:"Generator seed."`
	PoolStart  uint32 `default:"16777216" help:"First address of the pool."`
	PoolSize   int    `default:"16777216" help:"Size of the pool in bytes."`
}

// Run executes the stress command.
func (c *StressCmd) Run(logger *slog.Logger) error {
	if c.PoolSize <= 0 {
		return errors.Newf("pool size must be positive, got %d", c.PoolSize)
	}

	start := stressAddress(c.PoolStart)
	list, err := chunk.New[stressPool](start, start.Add(c.PoolSize), chunk.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = list.Destroy()
	}()

	rng := &lcg{next: c.Seed}
	var slots [stressSlots]stressAddress
	var allocated [stressSlots]bool
	allocations, frees, failures := 0, 0, 0

	for i := 0; i < c.Iterations; i++ {
		selected := rng.Int() % stressSlots

		if allocated[selected] {
			err = list.Free(slots[selected])
			if err != nil {
				return errors.Wrapf(err, "step %d: freeing %s", i, slots[selected])
			}
			allocated[selected] = false
			frees++
		} else {
			size := (rng.Int() & 0x3FFF) + 1

			var address stressAddress
			if size&1 != 0 {
				address, err = list.AllocFront(size)
			} else {
				address, err = list.AllocBack(size)
			}
			if err != nil {
				// Only a pool too small for 32 of the largest requests can run out
				logger.Warn("allocation failed", slog.Int("Step", i), slog.Int("Size", size), slog.Any("error", err))
				failures++
			} else {
				slots[selected] = address
				allocated[selected] = true
				allocations++
			}
		}

		err = list.Validate()
		if err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}

	stats := list.Stats()
	logger.Info("stress run complete",
		slog.Int("Iterations", c.Iterations),
		slog.Int("Allocations", allocations),
		slog.Int("Frees", frees),
		slog.Int("Failures", failures),
		slog.Int("Chunks", list.ChunkCount()))

	fmt.Printf("Stress run:\n")
	fmt.Printf("  Iterations:  %d\n", c.Iterations)
	fmt.Printf("  Allocations: %d (%d failed)\n", allocations, failures)
	fmt.Printf("  Frees:       %d\n", frees)
	fmt.Printf("  Chunks:      %d\n", list.ChunkCount())
	fmt.Printf("  Used:        %d of %d bytes (%d%% free)\n", stats.Used, stats.Total, stats.FreePercent)

	return nil
}
