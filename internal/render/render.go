// Package render turns Mermaid source text into images on the server.
package render

import (
	"context"
	"errors"
	"time"
)

// Format is an output format supported by the renderer.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// Valid reports whether f is a renderable format.
func (f Format) Valid() bool {
	switch f {
	case FormatSVG, FormatPNG, FormatPDF:
		return true
	}
	return false
}

// ContentType is the MIME type of the rendered bytes.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Request describes one render. Zero Width/Height/Scale use the renderer's
// defaults.
type Request struct {
	Code   string
	Format Format
	Width  int
	Height int
	Scale  float64
}

// Result holds the rendered bytes.
type Result struct {
	Format   Format        `json:"format"`
	Data     []byte        `json:"-"`
	Duration time.Duration `json:"duration"`
}

// ErrRenderFailed means the renderer ran but rejected the diagram, usually a
// syntax error. Detail carries the renderer's stderr.
var ErrRenderFailed = errors.New("render: diagram could not be rendered")

// Renderer represents the core interface for rendering diagrams in an isolated environment.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
}
