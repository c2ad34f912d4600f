package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/db"
	"github.com/Nishal77/QueueManagement-sub000/migrations"
)

const postgresImage = "postgres:16-alpine"

// pgContainer is a disposable Postgres started through the docker CLI.
type pgContainer struct {
	id  string
	url string
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// startPostgres runs the container on a loopback port chosen by docker.
func startPostgres(ctx context.Context) (*pgContainer, error) {
	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=queue",
		"-e", "POSTGRES_PASSWORD=queue",
		"-e", "POSTGRES_DB=queue_test",
		"--label", "app=queue-server-integration",
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker run: %w: %s", err, out)
	}
	c := &pgContainer{id: strings.TrimSpace(string(out))}

	addr, err := exec.CommandContext(ctx, "docker", "port", c.id, "5432/tcp").Output()
	if err != nil {
		c.Stop()
		return nil, fmt.Errorf("docker port: %w", err)
	}
	// docker may list one mapping per address family.
	hostPort := strings.TrimSpace(strings.SplitN(string(addr), "\n", 2)[0])
	c.url = fmt.Sprintf("postgres://queue:queue@%s/queue_test?sslmode=disable", hostPort)
	return c, nil
}

func (c *pgContainer) Stop() {
	_ = exec.Command("docker", "rm", "-f", c.id).Run()
}

// openDatabase waits for the server to accept connections, then brings the
// schema up to date with the embedded migrations.
func openDatabase(ctx context.Context, url string, wait time.Duration) (*pgxpool.Pool, error) {
	deadline := time.Now().Add(wait)
	var pool *pgxpool.Pool
	for {
		p, err := db.NewPool(ctx, url, 20, 2)
		if err == nil {
			pool = p
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("postgres not ready after %s: %w", wait, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return pool, nil
}
