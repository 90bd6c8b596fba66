package renderer

type Renderer interface {
	// Render frames until the configured number of samples per pixel has
	// been accumulated.
	Render() error

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
