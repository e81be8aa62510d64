package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/roaa-mamdouh/mermaid-studio/internal/render"
)

// sourceEnv carries the diagram text into the exec. Passing it through the
// environment keeps it out of the shell command line, so no quoting applies.
const sourceEnv = "MERMAID_SOURCE"

// Renderer implements render.Renderer by running mermaid-cli inside Docker.
type Renderer struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ render.Renderer = (*Renderer)(nil)

// New creates a Docker renderer, pulls the image and starts the container pool.
func New(cfg Config, logger *slog.Logger) (*Renderer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// Make sure the image is pulled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger.Info("ensuring renderer image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	io.Copy(io.Discard, reader)
	logger.Info("renderer image is ready")

	r := &Renderer{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	r.pool = NewPool(cli, cfg, logger)
	r.pool.Start()

	return r, nil
}

// Close shuts down the container pool and docker client.
func (r *Renderer) Close() error {
	r.pool.Stop()
	return r.cli.Close()
}

// Render runs mmdc in a pre-warmed container and returns the output file.
func (r *Renderer) Render(ctx context.Context, req render.Request) (*render.Result, error) {
	if !req.Format.Valid() {
		return nil, fmt.Errorf("render: unsupported format %q", req.Format)
	}
	start := time.Now()

	containerID, err := r.pool.GetContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}

	// Containers are single-use: the render leaves files in /tmp.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := r.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{
			Force: true,
		})
		if err != nil {
			r.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	renderCtx, renderCancel := context.WithTimeout(ctx, r.config.Timeout)
	defer renderCancel()

	execResp, err := r.cli.ContainerExecCreate(renderCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Env:          []string{sourceEnv + "=" + req.Code},
		Cmd:          []string{"sh", "-c", buildScript(r.config, req)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := r.cli.ContainerExecAttach(renderCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer

	done := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-renderCtx.Done():
		return nil, fmt.Errorf("render: timed out after %s", r.config.Timeout)
	}

	inspectResp, err := r.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}
	if inspectResp.ExitCode != 0 || stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", render.ErrRenderFailed, strings.TrimSpace(stderr.String()))
	}

	r.logger.Debug("diagram rendered",
		slog.String("format", string(req.Format)),
		slog.Int("bytes", stdout.Len()),
		slog.Duration("duration", time.Since(start)),
	)

	return &render.Result{
		Format:   req.Format,
		Data:     stdout.Bytes(),
		Duration: time.Since(start),
	}, nil
}

// buildScript assembles the shell pipeline run inside the container: write
// the source from the environment to a file, render it, print the output.
func buildScript(cfg Config, req render.Request) string {
	width, height, scale := req.Width, req.Height, req.Scale
	if width <= 0 {
		width = cfg.Width
	}
	if height <= 0 {
		height = cfg.Height
	}
	if scale <= 0 {
		scale = cfg.Scale
	}

	out := "/tmp/out." + string(req.Format)
	args := []string{cfg.CLIPath}
	if cfg.PuppeteerConfig != "" {
		args = append(args, "-p", cfg.PuppeteerConfig)
	}
	args = append(args,
		"-i", "/tmp/in.mmd",
		"-o", out,
		"-w", strconv.Itoa(width),
		"-H", strconv.Itoa(height),
		"-s", strconv.FormatFloat(scale, 'f', -1, 64),
		"-q",
	)

	return fmt.Sprintf(`printf '%%s' "$%s" > /tmp/in.mmd && %s 1>&2 && cat %s`,
		sourceEnv, strings.Join(args, " "), out)
}
