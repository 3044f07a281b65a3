//go:build integration

package connection

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})

	return client
}

func TestRedisManager_Integration_Contract(t *testing.T) {
	client := setupRedisContainer(t)
	runManagerContract(t, NewRedisManager(client, "", Options{TransferIDKey: "transferId"}))
}

func TestRedisManager_Integration_SharedBetweenReplicas(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()

	replicaA := NewRedisManager(client, "", Options{})
	replicaB := NewRedisManager(client, "", Options{})
	key := Key{"BPNL000000000001", "https://edc.example.com/api/v1/dsp", "q", "p"}

	if _, err := replicaA.Put(ctx, key, Entry{"transferProcessId": "tp-1", "@context": map[string]any{}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	id, ok, err := replicaB.TransferID(ctx, key)
	if err != nil || !ok || id != "tp-1" {
		t.Errorf("TransferID() from second replica = %q, %v, %v", id, ok, err)
	}

	if count, _ := replicaB.Count(ctx); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}

	removed, err := replicaB.Delete(ctx, key)
	if err != nil || !removed {
		t.Errorf("Delete() = %v, %v", removed, err)
	}
	if _, ok, _ := replicaA.Get(ctx, key); ok {
		t.Error("entry still visible to first replica after delete")
	}
}
