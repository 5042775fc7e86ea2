package tcnats

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/nats-io/nats.go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const SkipEnv = "FTG_SKIP_CONTAINER_TESTS"

// SetupTestNats returns a connection to a NATS server running in a
// container. The test is skipped with -short or if FTG_SKIP_CONTAINER_TESTS
// is set.
func SetupTestNats(t *testing.T) *nats.Conn {
	t.Helper()
	if testing.Short() || os.Getenv(SkipEnv) != "" {
		t.Skip("container tests disabled")
	}
	ctx := context.Background()
	port, err := nat.NewPort("tcp", "4222")
	if err != nil {
		t.Fatal(err)
	}
	container, err := SetupNats(ctx,
		WithPort(port.Port()),
		WithWaitStrategy(
			wait.ForLog("Server is ready").
				WithStartupTimeout(10*time.Second)),
		WithName("f1-telemetry-gateway-nats-test"),
	)
	if err != nil {
		t.Fatal(err)
	}
	containerPort, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatal(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := nats.Connect(fmt.Sprintf("nats://%s:%s", host, containerPort.Port()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(conn.Close)
	return conn
}
