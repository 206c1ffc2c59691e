package vkfractal

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	vk "github.com/goki/vulkan"

	"github.com/celer/vkfractal/frame"
	"github.com/celer/vkfractal/spirv"
)

//go:embed shaders/fractal.wgsl
var fractalWGSL string

// ShaderSource is the compute program, either WGSL text or a SPIR-V binary.
type ShaderSource struct {
	Name  string
	WGSL  string
	SPIRV []byte
}

// BuiltinShader returns the embedded fractal program.
func BuiltinShader() ShaderSource {
	return ShaderSource{Name: "fractal.wgsl", WGSL: fractalWGSL}
}

// LoadShaderSource reads a .wgsl or .spv file. Any other extension is read as SPIR-V.
func LoadShaderSource(path string) (ShaderSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ShaderSource{}, fmt.Errorf("%w: %w", frame.ErrShaderCompile, err)
	}
	src := ShaderSource{Name: filepath.Base(path)}
	if strings.EqualFold(filepath.Ext(path), ".wgsl") {
		src.WGSL = string(data)
	} else {
		src.SPIRV = data
	}
	return src, nil
}

// Compile returns the SPIR-V words of the program.
func (s ShaderSource) Compile() ([]uint32, error) {
	code := s.SPIRV
	if s.WGSL != "" {
		var err error
		code, err = naga.Compile(s.WGSL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", frame.ErrShaderCompile, s.Name, err)
		}
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", frame.ErrShaderCompile, s.Name)
	}
	words, err := spirv.Words(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", frame.ErrShaderCompile, s.Name, err)
	}
	if words[0] != spirv.Magic {
		return nil, fmt.Errorf("%w: %s is not SPIR-V", frame.ErrShaderCompile, s.Name)
	}
	return words, nil
}

// shaderModuleInfo describes words; CodeSize is in bytes.
func shaderModuleInfo(words []uint32) vk.ShaderModuleCreateInfo {
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(words) * 4),
		PCode:    words,
	}
}

type ShaderModule struct {
	Device         *Device
	Description    string
	VKShaderModule vk.ShaderModule
}

// CreateShaderModule wraps SPIR-V words in a shader module.
func (d *Device) CreateShaderModule(description string, words []uint32) (*ShaderModule, error) {
	var module vk.ShaderModule
	info := shaderModuleInfo(words)
	err := vk.Error(vk.CreateShaderModule(d.VKDevice, &info, nil, &module))
	if err != nil {
		return nil, err
	}

	return &ShaderModule{VKShaderModule: module, Device: d, Description: description}, nil
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo(stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.VKShaderModule,
		PName:  safeString(entryPoint),
	}
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}
