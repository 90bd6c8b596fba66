package device

import (
	"fmt"
	"sync"

	"github.com/lumen-rt/lumen/log"
)

// The default memory budget for a device (1 GiB).
const DefaultMemoryBudget int64 = 1 << 30

// A compute device with a fixed memory budget. Buffers allocated from the
// device are charged against the budget until they are released.
type Device struct {
	sync.Mutex

	// The device name.
	Name string

	// Maximum number of bytes that can be allocated; 0 means unlimited.
	MemoryBudget int64

	logger    log.Logger
	allocated int64
}

// Create a new device with the given memory budget.
func NewDevice(name string, memoryBudget int64) *Device {
	return &Device{
		Name:         name,
		MemoryBudget: memoryBudget,
		logger:       log.New(fmt.Sprintf("device (%s)", name)),
	}
}

// Create a named, unallocated buffer.
func (d *Device) Buffer(name string) *Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// Get the number of currently allocated bytes.
func (d *Device) Allocated() int64 {
	d.Lock()
	defer d.Unlock()
	return d.allocated
}

// Check whether size bytes can be allocated once released bytes have been
// freed.
func (d *Device) fits(size, released int64) bool {
	d.Lock()
	defer d.Unlock()
	return d.MemoryBudget <= 0 || d.allocated-released+size <= d.MemoryBudget
}

func (d *Device) reserve(name string, size int) error {
	d.Lock()
	defer d.Unlock()

	if d.MemoryBudget > 0 && d.allocated+int64(size) > d.MemoryBudget {
		d.logger.Errorf("could not allocate %d bytes for buffer %q (%d of %d bytes in use)", size, name, d.allocated, d.MemoryBudget)
		return fmt.Errorf("%w: buffer %q needs %d bytes; %d of %d bytes in use", ErrOutOfDeviceMemory, name, size, d.allocated, d.MemoryBudget)
	}
	d.allocated += int64(size)
	return nil
}

func (d *Device) free(size int) {
	d.Lock()
	d.allocated -= int64(size)
	d.Unlock()
}
