// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// Allocations above this size are checked against available memory.
	allocCheckSize = 64 << 20

	maxAllocSize = 1 << 30
)

// availableMemory can be replaced in tests.
var availableMemory = func() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// checkAlloc returns ErrAlloc if a buffer of size bytes should not be
// allocated. Sizes come from the file and can not be trusted.
func checkAlloc(size int64) error {
	if size < 0 || size > maxAllocSize {
		return fmt.Errorf("%w: %d bytes", ErrAlloc, size)
	}
	if size <= allocCheckSize {
		return nil
	}

	available, err := availableMemory()
	if err != nil {
		// Unknown, allow up to the hard limit.
		return nil //nolint:nilerr
	}
	if uint64(size) > available {
		return fmt.Errorf("%w: %d bytes, %d available", ErrAlloc, size, available)
	}
	return nil
}
