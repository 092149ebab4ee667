package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// RoundUpSize rounds a requested size up to the allocation granularity. A zero or negative size
// is rejected rather than rounded, since a request for nothing is always a caller bug.
func RoundUpSize(size int, granularity uint) (int, error) {
	if size <= 0 {
		return 0, cerrors.Wrapf(ErrInvalidArgument, "size must be positive, got %d", size)
	}
	return AlignUp(size, granularity), nil
}
