package vkdriver

import (
	"log/slog"
	"unsafe"

	"github.com/celer/lava"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// ValidationLayer is enabled by Options.Debug when the loader has it.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

const debugReportExtension = "VK_EXT_debug_report"

// Options describe the instance a Driver creates.
type Options struct {
	AppName    string
	EngineName string
	Version    Version
	// APIVersion defaults to 1.0.0.
	APIVersion Version

	// Extensions are required instance extensions, typically the ones the
	// windowing toolkit asks for.
	Extensions []string
	Layers     []string

	// Debug enables the validation layer and routes its reports to
	// lava.Logger.
	Debug bool

	// ProcAddr is the vkGetInstanceProcAddr to load Vulkan through, such as
	// glfw.GetVulkanGetInstanceProcAddress(). The default loader is used when
	// nil.
	ProcAddr unsafe.Pointer
}

// SupportedLayers returns a list of supported layers for use by Vulkan
func SupportedLayers() ([]string, error) {
	var count uint32
	if err := vkError(vk.EnumerateInstanceLayerProperties(&count, nil), "enumerate instance layers"); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := vkError(vk.EnumerateInstanceLayerProperties(&count, props), "enumerate instance layers"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns a list of supported instance extensions
func SupportedExtensions() ([]string, error) {
	var count uint32
	if err := vkError(vk.EnumerateInstanceExtensionProperties("", &count, nil), "enumerate instance extensions"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := vkError(vk.EnumerateInstanceExtensionProperties("", &count, props), "enumerate instance extensions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// New loads Vulkan and creates an instance.
func New(opts Options) (*Driver, error) {
	if opts.ProcAddr != nil {
		vk.SetGetInstanceProcAddr(opts.ProcAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "init vulkan")
	}

	supportedExt, err := SupportedExtensions()
	if err != nil {
		return nil, err
	}
	extensions := append([]string(nil), opts.Extensions...)
	for _, e := range extensions {
		if !contains(supportedExt, e) {
			return nil, errors.Errorf("instance extension %q is not supported", e)
		}
	}
	layers := append([]string(nil), opts.Layers...)

	debug := false
	if opts.Debug {
		supportedLayers, err := SupportedLayers()
		if err != nil {
			return nil, err
		}
		if contains(supportedLayers, ValidationLayer) {
			layers = append(layers, ValidationLayer)
		} else {
			lava.Logger().Warn("validation layer not available", slog.String("layer", ValidationLayer))
		}
		if contains(supportedExt, debugReportExtension) {
			extensions = append(extensions, debugReportExtension)
			debug = true
		}
	}

	apiVersion := opts.APIVersion
	if apiVersion.Major < 1 {
		apiVersion.Major = 1
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         apiVersion.VKVersion(),
		ApplicationVersion: opts.Version.VKVersion(),
		PApplicationName:   safeString(opts.AppName),
		PEngineName:        safeString(opts.EngineName),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := vkError(vk.CreateInstance(&createInfo, nil, &instance), "create instance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "init instance")
	}

	d := &Driver{
		instance:     instance,
		physicalByVK: make(map[vk.PhysicalDevice]lava.PhysicalDevice),
	}
	d.instanceHandle = lava.Instance(d.instances.Insert(instance))

	if debug {
		if err := d.setDebugCallback(); err != nil {
			lava.Logger().Warn("debug report callback not installed", slog.Any("err", err))
		}
	}

	lava.Logger().Info("vulkan instance created",
		slog.String("app", opts.AppName),
		slog.Any("extensions", extensions),
		slog.Any("layers", layers))
	return d, nil
}

func (d *Driver) setDebugCallback() error {
	var cb vk.DebugReportCallback
	err := vkError(vk.CreateDebugReportCallback(d.instance, &vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugCallback,
	}, nil, &cb), "create debug report callback")
	if err != nil {
		return err
	}
	d.debugCallback = cb
	return nil
}

// debugCallback routes validation reports to lava.Logger.
func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := lava.Logger()
	attrs := []any{slog.String("layer", pLayerPrefix), slog.Int("code", int(messageCode))}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		log.Warn(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn(pMessage, append(attrs, slog.Bool("performance", true))...)
	default:
		log.Debug(pMessage, attrs...)
	}
	return vk.Bool32(vk.False)
}
