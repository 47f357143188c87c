//go:build !gpu

package gpu

// Init reports that no compute device is available, since this binary was
// built without the "gpu" tag. Engine.Teardown/startup code can call Init
// and Release unconditionally regardless of how the binary was built.
func Init() error {
	return ErrNoGPU
}

// Release is a no-op in builds without the "gpu" tag.
func Release() {}
