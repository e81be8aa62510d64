package docker

import (
	"time"
)

// Config holds the configuration for Docker rendering.
type Config struct {
	// Image is the mermaid-cli image to render with.
	Image string
	// CLIPath is the mmdc binary inside the image.
	CLIPath string
	// PuppeteerConfig is passed to mmdc with -p; empty skips the flag.
	PuppeteerConfig string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time one render can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
	// Default output size when the request leaves them at zero.
	Width  int
	Height int
	Scale  float64
}

// DefaultConfig provides sensible defaults for the mermaid-cli image.
// Headless Chromium needs noticeably more memory than a script sandbox.
func DefaultConfig() Config {
	return Config{
		Image:           "minlag/mermaid-cli:10.9.1",
		CLIPath:         "/home/mermaidcli/node_modules/.bin/mmdc",
		PuppeteerConfig: "/puppeteer-config.json",
		MemoryLimit:     512 * 1024 * 1024,
		CPULimit:        1,
		Timeout:         20 * time.Second,
		PoolSize:        2,
		Width:           800,
		Height:          600,
		Scale:           2,
	}
}
