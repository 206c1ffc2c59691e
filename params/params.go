// Package params computes the per-frame parameter record consumed by the
// fractal compute program.
package params

import (
	"encoding/binary"
	"math"
)

// Kind selects the iteration the shader runs.
type Kind int32

const (
	KindMandelbrot Kind = 0
	KindJulia      Kind = 1
)

// Size is the std430 size of Frame in bytes.
const Size = 32

// Frame is the parameter record for one dispatch. Field order matches the
// Params struct of the shader.
type Frame struct {
	Center     [2]float32
	Time       float32
	Scale      float32
	Offset     [2]float32
	Iterations int32
	Kind       Kind
}

// Bytes encodes f with the std430 layout of the shader.
func (f Frame) Bytes() []byte {
	return f.AppendBytes(make([]byte, 0, Size))
}

// AppendBytes appends the std430 encoding of f to b.
func (f Frame) AppendBytes(b []byte) []byte {
	le := binary.LittleEndian
	b = le.AppendUint32(b, math.Float32bits(f.Center[0]))
	b = le.AppendUint32(b, math.Float32bits(f.Center[1]))
	b = le.AppendUint32(b, math.Float32bits(f.Time))
	b = le.AppendUint32(b, math.Float32bits(f.Scale))
	b = le.AppendUint32(b, math.Float32bits(f.Offset[0]))
	b = le.AppendUint32(b, math.Float32bits(f.Offset[1]))
	b = le.AppendUint32(b, uint32(f.Iterations))
	b = le.AppendUint32(b, uint32(f.Kind))
	return b
}
