package vkfractal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkfractal/frame"
	"github.com/celer/vkfractal/params"
	"github.com/celer/vkfractal/spirv"
)

// compileBuiltin compiles the embedded program, skipping when the WGSL
// compiler lacks a feature it needs.
func compileBuiltin(t *testing.T) []uint32 {
	t.Helper()
	words, err := BuiltinShader().Compile()
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("failed to compile fractal shader: %v", err)
	}
	return words
}

func TestBuiltinShaderCompiles(t *testing.T) {
	require.NotEmpty(t, fractalWGSL)
	words := compileBuiltin(t)
	assert.Equal(t, uint32(spirv.Magic), words[0])

	m, err := spirv.Reflect(words)
	require.NoError(t, err)

	ep, ok := m.Compute()
	require.True(t, ok, "no compute entry point")
	assert.Equal(t, "main", ep.Name)
	assert.Equal(t, [3]uint32{16, 16, 1}, ep.LocalSize)

	plan, err := planLayout(m)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), plan.target)
	assert.Equal(t, uint32(1), plan.params)
	require.Len(t, m.Bindings, 2)
	assert.Equal(t, uint64(params.Size), m.Bindings[1].Size)
}

func TestLoadShaderSource(t *testing.T) {
	dir := t.TempDir()

	wgsl := filepath.Join(dir, "custom.WGSL")
	require.NoError(t, os.WriteFile(wgsl, []byte("@compute @workgroup_size(1) fn main() {}"), 0o644))
	src, err := LoadShaderSource(wgsl)
	require.NoError(t, err)
	assert.Equal(t, "custom.WGSL", src.Name)
	assert.NotEmpty(t, src.WGSL)
	assert.Nil(t, src.SPIRV)

	spv := filepath.Join(dir, "custom.spv")
	require.NoError(t, os.WriteFile(spv, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}, 0o644))
	src, err = LoadShaderSource(spv)
	require.NoError(t, err)
	words, err := src.Compile()
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirv.Magic, 0x00010000}, words)

	_, err = LoadShaderSource(filepath.Join(dir, "missing.spv"))
	assert.ErrorIs(t, err, frame.ErrShaderCompile)
}

func TestCompileErrors(t *testing.T) {
	for name, src := range map[string]ShaderSource{
		"empty":     {Name: "empty.spv"},
		"unaligned": {Name: "odd.spv", SPIRV: []byte{1, 2, 3}},
		"not spirv": {Name: "text.spv", SPIRV: []byte("abcdefgh")},
		"bad wgsl":  {Name: "bad.wgsl", WGSL: "fn main( {"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := src.Compile()
			assert.ErrorIs(t, err, frame.ErrShaderCompile)
		})
	}
}

func TestShaderModuleInfo(t *testing.T) {
	words := []uint32{spirv.Magic, 0x00010300, 0, 16, 0}
	info := shaderModuleInfo(words)
	assert.Equal(t, uint64(20), info.CodeSize)
	assert.Equal(t, words, info.PCode)
}
