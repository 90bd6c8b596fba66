package device

import (
	"fmt"
	"unsafe"

	"github.com/lumen-rt/lumen/types"
)

type Buffer struct {
	// Associated Device.
	device *Device

	// A name for identifying the buffer.
	name string

	// Buffer storage; nil while the buffer is not allocated.
	data []byte
}

// Get buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Get buffer size.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Allocate a zero-filled buffer with the given size. If the buffer is
// already allocated it is released first.
func (b *Buffer) Allocate(size int) error {
	b.Release()

	if size < 0 {
		return fmt.Errorf("device (%s): invalid size %d for buffer %s", b.device.Name, size, b.name)
	}
	if err := b.device.reserve(b.name, size); err != nil {
		return err
	}

	b.data = make([]byte, size)
	return nil
}

// Allocate a buffer large enough to hold data and copy data into it.
func (b *Buffer) AllocateAndWriteData(data []byte) error {
	if err := b.Allocate(len(data)); err != nil {
		return err
	}
	copy(b.data, data)
	return nil
}

// Write data to the buffer starting at the given byte offset.
func (b *Buffer) WriteData(data []byte, offset int) error {
	if b.data == nil {
		return fmt.Errorf("%w: %s", ErrBufferReleased, b.name)
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("device (%s): insufficient buffer space (%d) in %s for copying data of length %d at offset %d", b.device.Name, len(b.data), b.name, len(data), offset)
	}
	copy(b.data[offset:], data)
	return nil
}

// Read size bytes starting at srcOffset into dst. If size <= 0 the
// remainder of the buffer is read.
func (b *Buffer) ReadData(srcOffset, size int, dst []byte) error {
	if b.data == nil {
		return fmt.Errorf("%w: %s", ErrBufferReleased, b.name)
	}
	if size <= 0 {
		size = len(b.data) - srcOffset
	}
	if srcOffset < 0 || srcOffset+size > len(b.data) || size > len(dst) {
		return fmt.Errorf("device (%s): invalid read of %d bytes at offset %d from %s (size %d) into host buffer of size %d", b.device.Name, size, srcOffset, b.name, len(b.data), len(dst))
	}
	copy(dst, b.data[srcOffset:srcOffset+size])
	return nil
}

// Zero the buffer contents.
func (b *Buffer) Clear() {
	clear(b.data)
}

// Get the raw buffer contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// View the buffer as a slice of Vec4 values. The view aliases the buffer
// storage and is invalidated by Allocate and Release.
func (b *Buffer) Vec4s() []types.Vec4 {
	count := len(b.data) / int(unsafe.Sizeof(types.Vec4{}))
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*types.Vec4)(unsafe.Pointer(&b.data[0])), count)
}

// Release buffer.
func (b *Buffer) Release() {
	if b.data != nil {
		b.device.free(len(b.data))
		b.data = nil
	}
}

// Returns true if the buffer holds allocated storage.
func (b *Buffer) Allocated() bool {
	return b.data != nil
}
