// Package spirv reads the resource interface of a SPIR-V compute module: the
// descriptor bindings it declares and the local workgroup size of its entry
// points. Pipeline layouts are derived from it so they never drift from the
// shader.
package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Magic is the first word of every SPIR-V module.
const Magic = 0x07230203

const (
	opName             = 5
	opEntryPoint       = 15
	opExecutionMode    = 16
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
	opExecutionModeID  = 331

	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationOffset        = 35
	decorationBinding       = 33
	decorationDescriptorSet = 34

	executionModeLocalSize   = 17
	executionModeLocalSizeID = 38

	storageUniformConstant = 0
	storageUniform         = 2
	storageStorageBuffer   = 12
)

// ExecutionModel of an entry point.
type ExecutionModel uint32

const (
	ExecutionModelVertex    ExecutionModel = 0
	ExecutionModelFragment  ExecutionModel = 4
	ExecutionModelGLCompute ExecutionModel = 5
)

// ErrInvalid is returned for malformed modules.
var ErrInvalid = errors.New("spirv: invalid module")

// BindingKind is the descriptor type a binding needs.
type BindingKind int

const (
	BindingUnknown BindingKind = iota
	BindingUniformBuffer
	BindingStorageBuffer
	BindingStorageImage
	BindingSampledImage
	BindingSampler
	BindingCombinedImageSampler
)

func (k BindingKind) String() string {
	switch k {
	case BindingUniformBuffer:
		return "uniform_buffer"
	case BindingStorageBuffer:
		return "storage_buffer"
	case BindingStorageImage:
		return "storage_image"
	case BindingSampledImage:
		return "sampled_image"
	case BindingSampler:
		return "sampler"
	case BindingCombinedImageSampler:
		return "combined_image_sampler"
	default:
		return "unknown"
	}
}

// Binding is one descriptor declared by the module.
type Binding struct {
	Set     uint32
	Binding uint32
	Kind    BindingKind
	// Count is the array length, 1 for non-arrays.
	Count uint32
	Name  string
	// Size is the smallest buffer range a buffer binding may be bound with,
	// zero when unknown. A trailing runtime array counts as empty, so only
	// its offset contributes.
	Size uint64
}

// EntryPoint is a shader entry point.
type EntryPoint struct {
	Name  string
	Model ExecutionModel
	// LocalSize is the workgroup size of compute entry points.
	LocalSize [3]uint32
}

// Module is the reflected interface of a SPIR-V module.
type Module struct {
	Version     uint32
	EntryPoints []EntryPoint
	// Bindings are sorted by set, then binding.
	Bindings []Binding
}

// Compute returns the first compute entry point.
func (m *Module) Compute() (EntryPoint, bool) {
	for _, ep := range m.EntryPoints {
		if ep.Model == ExecutionModelGLCompute {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Words converts a little-endian SPIR-V byte stream to words.
func Words(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of 4", ErrInvalid, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

type typeInfo struct {
	op      uint32
	sampled uint32
	elem    uint32
	length  uint32
	storage uint32
	// width is the byte size of scalars and the component count of vectors
	// and matrices.
	width   uint32
	members []uint32
	// stride is the ArrayStride of arrays.
	stride  uint32
}

// member decorations of a struct type
type memberLayout struct {
	offset       uint32
	hasOffset    bool
	matrixStride uint32
}

type variable struct {
	id      uint32
	typ     uint32
	storage uint32
}

// Reflect parses the module and returns its interface.
func Reflect(words []uint32) (*Module, error) {
	if len(words) < 5 {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalid)
	}
	if words[0] != Magic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrInvalid, words[0])
	}

	var (
		names      = map[uint32]string{}
		types      = map[uint32]*typeInfo{}
		constants  = map[uint32]uint32{}
		sets       = map[uint32]uint32{}
		bindings   = map[uint32]uint32{}
		hasBinding = map[uint32]bool{}
		blocks     = map[uint32]uint32{}
		entries    = map[uint32]*EntryPoint{}
		localIDs   = map[uint32][3]uint32{}
		order      []uint32
		variables  []variable
		layouts    = map[[2]uint32]*memberLayout{}
	)
	member := func(st, index uint32) *memberLayout {
		k := [2]uint32{st, index}
		if layouts[k] == nil {
			layouts[k] = &memberLayout{}
		}
		return layouts[k]
	}

	for pos := 5; pos < len(words); {
		count := int(words[pos] >> 16)
		op := words[pos] & 0xffff
		if count == 0 || pos+count > len(words) {
			return nil, fmt.Errorf("%w: bad instruction at word %d", ErrInvalid, pos)
		}
		ins := words[pos+1 : pos+count]
		pos += count

		switch op {
		case opName:
			if len(ins) >= 2 {
				names[ins[0]] = decodeString(ins[1:])
			}
		case opEntryPoint:
			if len(ins) < 3 {
				return nil, fmt.Errorf("%w: short OpEntryPoint", ErrInvalid)
			}
			entries[ins[1]] = &EntryPoint{
				Model: ExecutionModel(ins[0]),
				Name:  decodeString(ins[2:]),
			}
			order = append(order, ins[1])
		case opExecutionMode:
			if len(ins) >= 5 && ins[1] == executionModeLocalSize {
				if ep, ok := entries[ins[0]]; ok {
					ep.LocalSize = [3]uint32{ins[2], ins[3], ins[4]}
				}
			}
		case opExecutionModeID:
			if len(ins) >= 5 && ins[1] == executionModeLocalSizeID {
				localIDs[ins[0]] = [3]uint32{ins[2], ins[3], ins[4]}
			}
		case opDecorate:
			if len(ins) < 2 {
				continue
			}
			switch ins[1] {
			case decorationBinding:
				if len(ins) >= 3 {
					bindings[ins[0]] = ins[2]
					hasBinding[ins[0]] = true
				}
			case decorationDescriptorSet:
				if len(ins) >= 3 {
					sets[ins[0]] = ins[2]
				}
			case decorationBlock, decorationBufferBlock:
				blocks[ins[0]] = ins[1]
			case decorationArrayStride:
				if len(ins) >= 3 {
					if t, ok := types[ins[0]]; ok {
						t.stride = ins[2]
					} else {
						types[ins[0]] = &typeInfo{stride: ins[2]}
					}
				}
			}
		case opMemberDecorate:
			if len(ins) < 4 {
				continue
			}
			switch ins[2] {
			case decorationOffset:
				ml := member(ins[0], ins[1])
				ml.offset, ml.hasOffset = ins[3], true
			case decorationMatrixStride:
				member(ins[0], ins[1]).matrixStride = ins[3]
			}
		case opTypeInt, opTypeFloat:
			if len(ins) >= 2 {
				types[ins[0]] = &typeInfo{op: op, width: ins[1] / 8}
			}
		case opTypeVector, opTypeMatrix:
			if len(ins) >= 3 {
				types[ins[0]] = &typeInfo{op: op, elem: ins[1], width: ins[2]}
			}
		case opTypeImage:
			if len(ins) >= 7 {
				types[ins[0]] = &typeInfo{op: op, sampled: ins[6]}
			}
		case opTypeSampler, opTypeSampledImage:
			if len(ins) >= 1 {
				types[ins[0]] = &typeInfo{op: op}
			}
		case opTypeStruct:
			if len(ins) >= 1 {
				types[ins[0]] = &typeInfo{op: op, members: ins[1:]}
			}
		case opTypeArray, opTypeRuntimeArray:
			if len(ins) >= 2 {
				// ArrayStride decorations come before the type.
				t := &typeInfo{op: op, elem: ins[1]}
				if prev, ok := types[ins[0]]; ok {
					t.stride = prev.stride
				}
				if op == opTypeArray && len(ins) >= 3 {
					t.length = ins[2]
				}
				types[ins[0]] = t
			}
		case opTypePointer:
			if len(ins) >= 3 {
				types[ins[0]] = &typeInfo{op: op, storage: ins[1], elem: ins[2]}
			}
		case opConstant:
			if len(ins) >= 3 {
				constants[ins[1]] = ins[2]
			}
		case opVariable:
			if len(ins) >= 3 {
				variables = append(variables, variable{typ: ins[0], id: ins[1], storage: ins[2]})
			}
		}
	}

	m := &Module{Version: words[1]}
	for _, id := range order {
		ep := entries[id]
		if ids, ok := localIDs[id]; ok {
			for i, cid := range ids {
				ep.LocalSize[i] = constants[cid]
			}
		}
		m.EntryPoints = append(m.EntryPoints, *ep)
	}

	for _, v := range variables {
		if !hasBinding[v.id] {
			continue
		}
		ptr, ok := types[v.typ]
		if !ok || ptr.op != opTypePointer {
			return nil, fmt.Errorf("%w: variable %d is not a pointer", ErrInvalid, v.id)
		}
		elem, count := ptr.elem, uint32(1)
		if t, ok := types[elem]; ok && (t.op == opTypeArray || t.op == opTypeRuntimeArray) {
			if t.op == opTypeArray {
				count = constants[t.length]
			} else {
				count = 0
			}
			elem = t.elem
		}
		b := Binding{
			Set:     sets[v.id],
			Binding: bindings[v.id],
			Kind:    classify(v.storage, types[elem], blocks[elem]),
			Count:   count,
			Name:    names[v.id],
		}
		if b.Kind == BindingUniformBuffer || b.Kind == BindingStorageBuffer {
			l := &layout{types: types, constants: constants, members: layouts}
			b.Size = l.size(elem, 0, 0)
		}
		m.Bindings = append(m.Bindings, b)
	}
	sort.Slice(m.Bindings, func(i, j int) bool {
		a, b := m.Bindings[i], m.Bindings[j]
		if a.Set != b.Set {
			return a.Set < b.Set
		}
		return a.Binding < b.Binding
	})
	return m, nil
}

type layout struct {
	types     map[uint32]*typeInfo
	constants map[uint32]uint32
	members   map[[2]uint32]*memberLayout
}

// maxDepth bounds type nesting so malformed self-referencing types end.
const maxDepth = 16

// size is the minimum byte size of type id. matrixStride applies when id is
// a matrix member.
func (l *layout) size(id, matrixStride uint32, depth int) uint64 {
	t, ok := l.types[id]
	if !ok || depth > maxDepth {
		return 0
	}
	switch t.op {
	case opTypeInt, opTypeFloat:
		return uint64(t.width)
	case opTypeVector:
		return uint64(t.width) * l.size(t.elem, 0, depth+1)
	case opTypeMatrix:
		col := l.size(t.elem, 0, depth+1)
		if t.width == 0 {
			return 0
		}
		if matrixStride == 0 {
			return uint64(t.width) * col
		}
		return uint64(t.width-1)*uint64(matrixStride) + col
	case opTypeArray:
		n := uint64(l.constants[t.length])
		if n == 0 {
			return 0
		}
		elem := l.size(t.elem, matrixStride, depth+1)
		if t.stride == 0 {
			return n * elem
		}
		return (n-1)*uint64(t.stride) + elem
	case opTypeStruct:
		var end, next uint64
		for i, mid := range t.members {
			offset := next
			ml := l.members[[2]uint32{id, uint32(i)}]
			var stride uint32
			if ml != nil {
				if ml.hasOffset {
					offset = uint64(ml.offset)
				}
				stride = ml.matrixStride
			}
			next = offset + l.size(mid, stride, depth+1)
			end = max(end, next)
		}
		return end
	}
	// Runtime arrays may be empty.
	return 0
}

func classify(storage uint32, t *typeInfo, block uint32) BindingKind {
	if t == nil {
		return BindingUnknown
	}
	switch storage {
	case storageStorageBuffer:
		return BindingStorageBuffer
	case storageUniform:
		if block == decorationBufferBlock {
			return BindingStorageBuffer
		}
		return BindingUniformBuffer
	case storageUniformConstant:
		switch t.op {
		case opTypeImage:
			if t.sampled == 2 {
				return BindingStorageImage
			}
			return BindingSampledImage
		case opTypeSampler:
			return BindingSampler
		case opTypeSampledImage:
			return BindingCombinedImageSampler
		}
	}
	return BindingUnknown
}

// decodeString reads a nul terminated literal string packed into words.
func decodeString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for i := 0; i < 4; i++ {
			c := byte(w >> (8 * i))
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}
