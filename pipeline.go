package vkfractal

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/celer/vkfractal/frame"
	"github.com/celer/vkfractal/params"
	"github.com/celer/vkfractal/spirv"
)

// ComputePipeline is the fractal program ready to dispatch: the shader module,
// the descriptor set layout reflected from it and the pipeline itself.
type ComputePipeline struct {
	Device     *Device
	Shader     *ShaderModule
	SetLayout  *DescriptorSetLayout
	Layout     *PipelineLayout
	Cache      *PipelineCache
	VKPipeline vk.Pipeline

	EntryPoint string
	LocalSize  [3]uint32
	// TargetBinding is the storage image the program writes, ParamsBinding the
	// buffer holding the frame parameters.
	TargetBinding uint32
	ParamsBinding uint32
	ParamsType    vk.DescriptorType
}

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	pipelineCacheCreate := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}

	var pipelineCache vk.PipelineCache

	err := vk.Error(vk.CreatePipelineCache(d.VKDevice, &pipelineCacheCreate, nil, &pipelineCache))
	if err != nil {
		return nil, err
	}

	return &PipelineCache{Device: d, VKPipelineCache: pipelineCache}, nil
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

// pipelinePlan is what the pipeline needs to know about a reflected module.
type pipelinePlan struct {
	entry    spirv.EntryPoint
	bindings []spirv.Binding
	target   uint32
	params   uint32
	// paramsKind is a storage or uniform buffer.
	paramsKind spirv.BindingKind
}

// planLayout checks that the module has the interface the frame loop binds: a
// compute entry point, one descriptor set holding exactly one storage image
// and one buffer no larger than a parameter record.
func planLayout(m *spirv.Module) (pipelinePlan, error) {
	ep, ok := m.Compute()
	if !ok {
		return pipelinePlan{}, fmt.Errorf("%w: no compute entry point", frame.ErrPipelineLink)
	}
	for _, n := range ep.LocalSize {
		if n == 0 {
			return pipelinePlan{}, fmt.Errorf("%w: entry point %s has no workgroup size", frame.ErrPipelineLink, ep.Name)
		}
	}

	plan := pipelinePlan{entry: ep}
	var images, buffers int
	for _, b := range m.Bindings {
		if b.Set != 0 {
			return pipelinePlan{}, fmt.Errorf("%w: binding %d uses descriptor set %d, only set 0 is bound", frame.ErrPipelineLink, b.Binding, b.Set)
		}
		if _, ok := descriptorType(b.Kind); !ok {
			return pipelinePlan{}, fmt.Errorf("%w: binding %d has unsupported type", frame.ErrPipelineLink, b.Binding)
		}
		switch b.Kind {
		case spirv.BindingStorageImage:
			images++
			plan.target = b.Binding
		case spirv.BindingStorageBuffer, spirv.BindingUniformBuffer:
			if b.Size > params.Size {
				return pipelinePlan{}, fmt.Errorf("%w: parameter buffer at binding %d needs %d bytes, a frame record has %d",
					frame.ErrPipelineLink, b.Binding, b.Size, params.Size)
			}
			buffers++
			plan.params = b.Binding
			plan.paramsKind = b.Kind
		default:
			return pipelinePlan{}, fmt.Errorf("%w: binding %d is a %s, nothing binds it", frame.ErrPipelineLink, b.Binding, b.Kind)
		}
		plan.bindings = append(plan.bindings, b)
	}
	if images != 1 || buffers != 1 {
		return pipelinePlan{}, fmt.Errorf("%w: want one storage image and one parameter buffer, got %d and %d",
			frame.ErrPipelineLink, images, buffers)
	}
	return plan, nil
}

func descriptorType(k spirv.BindingKind) (vk.DescriptorType, bool) {
	switch k {
	case spirv.BindingUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, true
	case spirv.BindingStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, true
	case spirv.BindingStorageImage:
		return vk.DescriptorTypeStorageImage, true
	case spirv.BindingSampledImage:
		return vk.DescriptorTypeSampledImage, true
	case spirv.BindingSampler:
		return vk.DescriptorTypeSampler, true
	case spirv.BindingCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler, true
	}
	return 0, false
}

// GroupCount is the number of workgroups covering size, rounding up.
func GroupCount(size frame.Extent, local [3]uint32) (x, y, z uint32) {
	div := func(n, d uint32) uint32 {
		if d == 0 {
			d = 1
		}
		return (n + d - 1) / d
	}
	return div(size.Width, local[0]), div(size.Height, local[1]), 1
}

// BuildComputePipeline compiles src, reflects its interface and creates the
// layouts and the pipeline. Compile failures wrap frame.ErrShaderCompile, all
// other failures frame.ErrPipelineLink.
func (d *Device) BuildComputePipeline(src ShaderSource) (*ComputePipeline, error) {
	words, err := src.Compile()
	if err != nil {
		return nil, err
	}
	m, err := spirv.Reflect(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", frame.ErrShaderCompile, err)
	}
	plan, err := planLayout(m)
	if err != nil {
		return nil, err
	}

	cp := &ComputePipeline{
		Device:        d,
		EntryPoint:    plan.entry.Name,
		LocalSize:     plan.entry.LocalSize,
		TargetBinding: plan.target,
		ParamsBinding: plan.params,
	}
	cp.ParamsType, _ = descriptorType(plan.paramsKind)

	link := func(what string, err error) (*ComputePipeline, error) {
		cp.Destroy()
		return nil, fmt.Errorf("%w: %s: %w", frame.ErrPipelineLink, what, err)
	}

	if cp.Shader, err = d.CreateShaderModule(src.Name, words); err != nil {
		return link("shader module", err)
	}

	layout := d.NewDescriptorSetLayout()
	for _, b := range plan.bindings {
		dt, _ := descriptorType(b.Kind)
		count := b.Count
		if count == 0 {
			count = 1
		}
		layout.AddBinding(vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  dt,
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		})
	}
	if cp.SetLayout, err = d.CreateDescriptorSetLayout(layout); err != nil {
		return link("descriptor set layout", err)
	}
	if cp.Layout, err = d.CreatePipelineLayout(cp.SetLayout); err != nil {
		return link("pipeline layout", err)
	}
	if cp.Cache, err = d.CreatePipelineCache(); err != nil {
		return link("pipeline cache", err)
	}

	ci := []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  cp.Shader.VKPipelineShaderStageCreateInfo(vk.ShaderStageComputeBit, cp.EntryPoint),
		Layout: cp.Layout.VKPipelineLayout,
	}}
	pipelines := make([]vk.Pipeline, 1)
	err = vk.Error(vk.CreateComputePipelines(d.VKDevice, cp.Cache.VKPipelineCache, 1, ci, nil, pipelines))
	if err != nil {
		return link("compute pipeline", err)
	}
	cp.VKPipeline = pipelines[0]

	Logger().Info("compute pipeline created",
		zap.String("shader", src.Name),
		zap.String("entry_point", cp.EntryPoint),
		zap.Uint32s("local_size", cp.LocalSize[:]),
		zap.Int("bindings", len(plan.bindings)))
	return cp, nil
}

// Destroy releases whatever parts of the pipeline were created.
func (c *ComputePipeline) Destroy() {
	if c.VKPipeline != nil {
		vk.DestroyPipeline(c.Device.VKDevice, c.VKPipeline, nil)
		c.VKPipeline = nil
	}
	if c.Cache != nil {
		c.Cache.Destroy()
		c.Cache = nil
	}
	if c.Layout != nil {
		c.Layout.Destroy()
		c.Layout = nil
	}
	if c.SetLayout != nil {
		c.SetLayout.Destroy()
		c.SetLayout = nil
	}
	if c.Shader != nil {
		c.Shader.Destroy()
		c.Shader = nil
	}
}
