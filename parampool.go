package vkfractal

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
)

var errInsufficientPoolSpace = errors.New("insufficient storage space in parameter pool")

// ParameterPool is a host visible, coherent buffer the per-frame parameter
// records are suballocated from. Its memory stays mapped until Destroy, so a
// write is a copy and nothing needs flushing.
type ParameterPool struct {
	Device    *Device
	Buffer    *Buffer
	Memory    *DeviceMemory
	Allocator *LinearAllocator
	// Align is the offset alignment every record starts on.
	Align  uint64
	Usage  vk.BufferUsageFlagBits
	mapped []byte
}

// CreateParameterPool creates a pool with room for records records of
// recordSize bytes each, aligned for use as storage or uniform buffer ranges.
func (d *Device) CreateParameterPool(records int, recordSize uint64) (*ParameterPool, error) {
	align := d.PhysicalDevice.MinStorageBufferOffsetAlignment()
	if u := d.PhysicalDevice.MinUniformBufferOffsetAlignment(); u > align {
		align = u
	}
	size := makeAlignUp(recordSize, align) * uint64(records)

	p := &ParameterPool{
		Device:    d,
		Allocator: &LinearAllocator{Size: size},
		Align:     align,
		Usage:     vk.BufferUsageStorageBufferBit | vk.BufferUsageUniformBufferBit,
	}

	var err error
	p.Buffer, err = d.CreateBufferWithOptions(size, p.Usage, vk.SharingModeExclusive)
	if err != nil {
		return nil, fmt.Errorf("failed to create parameter buffer: %w", err)
	}
	p.Memory, err = d.AllocateForBuffer(p.Buffer, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("failed to allocate parameter memory: %w", err)
	}
	if err := p.Buffer.Bind(p.Memory, 0); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("failed to bind parameter memory: %w", err)
	}
	if _, err := p.Memory.Map(); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("failed to map parameter memory: %w", err)
	}
	p.mapped = p.Memory.Bytes()
	return p, nil
}

// Write copies data into a fresh allocation. The allocation stays live until
// Free, which must not happen before the GPU is done reading it.
func (p *ParameterPool) Write(data []byte) (*Allocation, error) {
	a := p.Allocator.Allocate(uint64(len(data)), p.Align)
	if a == nil {
		return nil, fmt.Errorf("%w: %d records live, %d of %d bytes used",
			errInsufficientPoolSpace, p.Allocator.Len(), p.Allocator.Used(), p.Allocator.Size)
	}
	if a.Offset+a.Size > uint64(len(p.mapped)) {
		p.Allocator.Free(a)
		return nil, fmt.Errorf("parameter allocation %s outside mapped range of %d bytes", a, len(p.mapped))
	}
	copy(p.mapped[a.Offset:a.Offset+a.Size], data)
	return a, nil
}

func (p *ParameterPool) Free(a *Allocation) {
	if a != nil {
		p.Allocator.Free(a)
	}
}

func (p *ParameterPool) Destroy() {
	p.mapped = nil
	if p.Buffer != nil {
		p.Buffer.Destroy()
		p.Buffer = nil
	}
	if p.Memory != nil {
		p.Memory.Destroy()
		p.Memory = nil
	}
}
