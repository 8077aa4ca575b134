package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/nanoclaw/ops/internal/plan"
)

// runOpencodeSandbox runs a coding task inside an ephemeral, networkless
// Docker container as the local fallback when no external opencode
// endpoint is configured. Cwd is bind-mounted read-write at /workspace.
func (e *Executor) runOpencodeSandbox(ctx context.Context, a plan.OpencodeServeAction) (string, error) {
	image := e.cfg.DockerSandboxImage
	if image == "" {
		image = "golang:alpine"
	}
	workspace := a.Cwd
	if workspace == "" {
		var err error
		workspace, err = os.MkdirTemp("", "nanoclaw-opencode-")
		if err != nil {
			return "", fmt.Errorf("create scratch workspace: %w", err)
		}
		defer os.RemoveAll(workspace)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      image,
		Cmd:        []string{"sh", "-c", a.Task},
		WorkingDir: "/workspace",
		Tty:        false,
	}, &container.HostConfig{
		Resources:   container.Resources{Memory: 512 * 1024 * 1024},
		NetworkMode: "none",
		Binds:       []string{workspace + ":/workspace"},
		AutoRemove:  true,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create sandbox container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start sandbox container: %w", err)
	}

	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		return "", fmt.Errorf("wait sandbox container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		_ = cli.ContainerKill(ctx, resp.ID, "SIGKILL")
		return "", ctx.Err()
	}

	out, err := cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("read sandbox logs: %w", err)
	}
	defer out.Close()

	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, out)

	if exitCode != 0 {
		return "", fmt.Errorf("sandbox exited %d: %s", exitCode, truncateTail(stderr.String(), maxSSHStderr))
	}
	return truncateTail(stdout.String(), maxSSHStdout), nil
}
