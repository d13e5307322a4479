package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"
)

const gamePort = "7777/udp"

// DockerAdapter runs workloads as plain containers on the local engine.
// Used for development environments without a cluster.
type DockerAdapter struct {
	cli *client.Client
}

func NewDockerAdapter() (*DockerAdapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Info().Msg("connected to docker daemon")
	return &DockerAdapter{cli: cli}, nil
}

func (a *DockerAdapter) CreateWorkload(ctx context.Context, spec WorkloadSpec) (Endpoint, error) {
	name := ResourceName(spec.ID)

	reader, err := a.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	io.Copy(io.Discard, reader)

	cfg := &container.Config{
		Image: spec.Image,
		Env: []string{
			"SERVER_ID=" + spec.ID,
			"SPACE_ID=" + spec.SpaceID,
			"MAP=" + spec.Map,
			"GAME_MODE=" + spec.GameMode,
			fmt.Sprintf("MAX_PLAYERS=%d", spec.MaxPlayers),
		},
		ExposedPorts: nat.PortSet{gamePort: struct{}{}},
		Labels: map[string]string{
			"workload_id": spec.ID,
			"space_id":    spec.SpaceID,
			"service":     "gameserver",
		},
	}

	hostCfg := &container.HostConfig{
		PublishAllPorts: true,
		RestartPolicy:   container.RestartPolicy{Name: "unless-stopped"},
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Endpoint{}, fmt.Errorf("failed to start container: %w", err)
	}

	// Resolve the published host port for the game port.
	info, err := a.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return Endpoint{Host: spec.Host}, nil
	}
	endpoint := Endpoint{Host: spec.Host}
	if bindings, ok := info.NetworkSettings.Ports[nat.Port(gamePort)]; ok && len(bindings) > 0 {
		fmt.Sscanf(bindings[0].HostPort, "%d", &endpoint.Port)
	}

	log.Info().Str("container", resp.ID[:12]).Str("workload", spec.ID).Msg("workload provisioned")
	return endpoint, nil
}

func (a *DockerAdapter) DeleteWorkload(ctx context.Context, id string) error {
	name := ResourceName(id)

	timeout := 10
	if err := a.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		log.Warn().Err(err).Str("container", name).Msg("failed to stop container")
	}

	if err := a.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (a *DockerAdapter) ListWorkloads(ctx context.Context) ([]RawResource, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", "service=gameserver")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	resources := make([]RawResource, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		resources = append(resources, RawResource{Name: name, Labels: c.Labels})
	}
	return resources, nil
}
