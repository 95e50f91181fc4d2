// Package runner implements the exploit runner: a bounded container pool
// per exploit, the per-execution exec contract (dual timeout, output
// capture, flag extraction), and the per-tick eligible-target dispatch
// loop.
package runner

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool is a bounded set of long-lived containers built from one Docker
// image, leased under exclusive, first-available, FIFO-wait policy.
// Pool reuse amortizes container startup across rounds.
type Pool struct {
	docker *client.Client
	leases chan string // buffered with one container id per slot
	ids    []string    // every container id the pool owns, lease state aside
}

// NewPool creates poolSize containers from image and fills the lease
// channel. Containers are started but otherwise idle until a lease
// invokes the exploit entrypoint inside them.
func NewPool(ctx context.Context, docker *client.Client, image string, poolSize int) (*Pool, error) {
	if poolSize <= 0 {
		poolSize = 1
	}
	p := &Pool{docker: docker, leases: make(chan string, poolSize), ids: make([]string, 0, poolSize)}

	for i := 0; i < poolSize; i++ {
		id, err := p.createContainer(ctx, image)
		if err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("create pool container %d/%d for image %s: %w", i+1, poolSize, image, err)
		}
		p.ids = append(p.ids, id)
		p.leases <- id
	}
	return p, nil
}

// ContainerIDs returns every container id the pool owns, independent of
// which are currently leased out.
func (p *Pool) ContainerIDs() []string {
	return append([]string(nil), p.ids...)
}

func (p *Pool) createContainer(ctx context.Context, image string) (string, error) {
	resp, err := p.docker.ContainerCreate(ctx, &container.Config{
		Image:      image,
		Entrypoint: []string{"sleep", "infinity"},
		Tty:        true,
	}, nil, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	if err := p.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("container start: %w", err)
	}
	return resp.ID, nil
}

// Lease blocks until a container is available or ctx is cancelled, and
// returns its id along with a release function the caller must invoke
// exactly once.
func (p *Pool) Lease(ctx context.Context) (id string, release func(), err error) {
	select {
	case id := <-p.leases:
		return id, func() { p.leases <- id }, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close stops and removes every container owned by the pool. It closes
// the lease channel; leases held by in-flight executions are abandoned
// (their containers are still removed on a best-effort basis by id, since
// the caller is shutting down).
func (p *Pool) Close(ctx context.Context) {
	close(p.leases)
	for _, id := range p.ids {
		_ = p.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	}
}
