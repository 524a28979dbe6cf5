package ports

import (
	"context"
	"io"
	"time"

	"github.com/melih/lighthouse-up/internal/core/domain"
)

// LogStreamer follows the log output of a container. onLine is called for every
// line in arrival order and returns false to stop consuming the stream. onError
// receives stream failures. Closing the returned handle cancels the stream.
type LogStreamer interface {
	StreamLogs(ctx context.Context, id string, onLine func(line string) bool, onError func(err error)) (io.Closer, error)
}

// ContainerEngine defines the container operations needed to start a batch.
// This interface allows us to switch between Docker, Podman, or a fake in tests
// without changing the orchestration logic.
type ContainerEngine interface {
	LogStreamer

	PullIfMissing(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, req domain.CreateRequest) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, grace time.Duration) error
	RemoveContainer(ctx context.Context, id string, removeVolumes bool) error
	PortBindings(ctx context.Context, id string) ([]domain.PortBinding, error)
	// ContainerExists reports whether a container with the given name exists
	// outside the batch.
	ContainerExists(ctx context.Context, name string) (bool, error)
}

// PropertySink persists resolved port properties.
type PropertySink interface {
	Write(props map[string]string) error
}

// BatchService exposes a running batch to outer adapters.
type BatchService interface {
	Containers() []domain.RuntimeContainer
	Properties() map[string]string
	StopAll(ctx context.Context) error
}
