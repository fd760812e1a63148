package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/tlsconfig"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/vizai/internal/config"
	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

//go:embed runner.py
var runnerSource []byte

const (
	runnerDir   = "/tmp/vizai"
	runnerPath  = runnerDir + "/runner.py"
	snippetPath = runnerDir + "/snippet.py"
	managedBy   = "vizai"
)

// dockerAPI is the subset of the Docker client the executor drives.
type dockerAPI interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// DockerExecutor runs each job in a fresh container on a Docker endpoint.
// The sandbox key is sent as a bearer token, so the endpoint is usually an
// authenticating proxy in front of the daemon.
type DockerExecutor struct {
	cfg     config.SandboxConfig
	connect func(apiKey string) (dockerAPI, error)
	log     zerolog.Logger
}

func NewDockerExecutor(cfg config.SandboxConfig) *DockerExecutor {
	e := &DockerExecutor{
		cfg: cfg,
		log: logger.With("sandbox"),
	}
	e.connect = e.newClient
	return e
}

func (e *DockerExecutor) Mode() models.ExecutionMode { return models.ModeSandbox }

func (e *DockerExecutor) newClient(apiKey string) (dockerAPI, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if e.cfg.Host != "" {
		opts = append(opts, client.WithHost(e.cfg.Host))
	}
	if e.cfg.TLSCA != "" || e.cfg.TLSCert != "" {
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   e.cfg.TLSCA,
			CertFile: e.cfg.TLSCert,
			KeyFile:  e.cfg.TLSKey,
		})
		if err != nil {
			return nil, fmt.Errorf("sandbox tls config: %w", err)
		}
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		}))
	}
	if apiKey != "" {
		opts = append(opts, client.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + apiKey,
		}))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// Execute creates a container, copies the dataset in under its original
// name, runs the snippet and removes the container on every path.
func (e *DockerExecutor) Execute(ctx context.Context, job Job) (*Execution, error) {
	if e.cfg.RequireKey && job.APIKey == "" {
		return nil, ErrMissingKey
	}
	start := time.Now()

	cli, err := e.connect(job.APIKey)
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	if e.cfg.PullImage {
		if err := e.ensureImage(ctx, cli); err != nil {
			return nil, err
		}
	}

	id, err := e.createContainer(ctx, cli)
	if err != nil {
		return nil, err
	}
	defer e.removeContainer(cli, id)

	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	if err := e.upload(ctx, cli, id, job); err != nil {
		return nil, err
	}

	exec, err := e.run(ctx, cli, id)
	if err != nil {
		return nil, err
	}
	exec.Duration = time.Since(start)

	e.log.Info().
		Str("container", shortID(id)).
		Int("exit_code", exec.ExitCode).
		Int("artifacts", len(exec.Artifacts)).
		Dur("elapsed", exec.Duration).
		Msg("snippet executed")
	return exec, nil
}

func (e *DockerExecutor) ensureImage(ctx context.Context, cli dockerAPI) error {
	if _, err := cli.ImageInspect(ctx, e.cfg.Image); err == nil {
		return nil
	}
	e.log.Info().Str("image", e.cfg.Image).Msg("pulling sandbox image")
	reader, err := cli.ImagePull(ctx, e.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (e *DockerExecutor) createContainer(ctx context.Context, cli dockerAPI) (string, error) {
	containerConfig := &container.Config{
		Image:           e.cfg.Image,
		Cmd:             []string{"sleep", "infinity"},
		WorkingDir:      e.cfg.WorkDir,
		NetworkDisabled: true,
		Env:             []string{"MPLBACKEND=Agg", "PYTHONUNBUFFERED=1"},
		Labels: map[string]string{
			"managed-by": managedBy,
		},
	}
	pids := int64(256)
	hostConfig := &container.HostConfig{
		AutoRemove: false,
		Resources: container.Resources{
			Memory:    e.cfg.MemoryMB * 1024 * 1024,
			PidsLimit: &pids,
		},
	}

	name := fmt.Sprintf("vizai-%s", uuid.NewString()[:8])
	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// removeContainer uses its own context so cleanup still happens after the
// request context is cancelled.
func (e *DockerExecutor) removeContainer(cli dockerAPI, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		e.log.Warn().Err(err).Str("container", shortID(id)).Msg("failed to remove container")
	}
}

func (e *DockerExecutor) upload(ctx context.Context, cli dockerAPI, id string, job Job) error {
	data, err := os.ReadFile(job.Dataset.LocalPath)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	dataTar, err := tarFiles(map[string][]byte{job.Dataset.Name: data})
	if err != nil {
		return err
	}
	if err := cli.CopyToContainer(ctx, id, e.cfg.WorkDir, dataTar, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to upload dataset: %w", err)
	}

	codeTar, err := tarFiles(map[string][]byte{
		path.Base(runnerDir) + "/" + path.Base(runnerPath):  runnerSource,
		path.Base(runnerDir) + "/" + path.Base(snippetPath): []byte(job.Code),
	})
	if err != nil {
		return err
	}
	if err := cli.CopyToContainer(ctx, id, path.Dir(runnerDir), codeTar, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to upload code: %w", err)
	}
	return nil
}

func (e *DockerExecutor) run(ctx context.Context, cli dockerAPI, id string) (*Execution, error) {
	if e.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExecTimeout)
		defer cancel()
	}

	created, err := cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          []string{"python", runnerPath, snippetPath},
		WorkingDir:   e.cfg.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	hijacked, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer hijacked.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, hijacked.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("read exec output: %w", err)
		}
	case <-ctx.Done():
		hijacked.Close()
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Execution{
				Stderr: stderr.String(),
				Error: &models.ExecutionError{
					Name:  "TimeoutError",
					Value: fmt.Sprintf("execution exceeded %s", e.cfg.ExecTimeout),
				},
				ExitCode: -1,
			}, nil
		}
		return nil, ctx.Err()
	}

	inspect, err := cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	exec := &Execution{Stderr: stderr.String(), ExitCode: inspect.ExitCode}
	if err := parseOutput(stdout.Bytes(), exec); err != nil {
		return nil, err
	}
	if exec.Error == nil && exec.ExitCode != 0 {
		exec.Error = &models.ExecutionError{
			Name:      "ProcessError",
			Value:     fmt.Sprintf("runner exited with code %d", exec.ExitCode),
			Traceback: lastLines(exec.Stderr, 20),
		}
	}
	if exec.Error != nil {
		// output of a failed run is not returned
		exec.Artifacts = nil
	}
	return exec, nil
}

// tarFiles packs name -> content pairs, adding parent directories.
func tarFiles(files map[string][]byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()
	dirs := make(map[string]bool)

	for name, content := range files {
		if dir := path.Dir(name); dir != "." && !dirs[dir] {
			dirs[dir] = true
			if err := tw.WriteHeader(&tar.Header{
				Name:     dir + "/",
				Typeflag: tar.TypeDir,
				Mode:     0755,
				ModTime:  now,
			}); err != nil {
				return nil, err
			}
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
			ModTime:  now,
		}); err != nil {
			return nil, err
		}
		if _, err := tw.Write(content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
