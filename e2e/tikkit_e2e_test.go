//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tikkit/internal/adapter/httpstore"
	msql "tikkit/internal/adapter/mysql"
	"tikkit/internal/domain"
	"tikkit/internal/migrate"
	"tikkit/internal/ports"
	"tikkit/internal/server"
)

func startMySQL(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      "testdb",
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_USER":          "test",
			"MYSQL_PASSWORD":      "pass",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = mysqlC.Terminate(context.Background()) })

	host, err := mysqlC.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := mysqlC.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		"test", "pass", host, port.Port(), "testdb")
}

func TestServerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	ctx := context.Background()
	dsn := startMySQL(t, ctx)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := migrate.Run(ctx, dsn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	users, err := msql.NewStore(ctx, dsn, logger)
	if err != nil {
		t.Fatalf("mysql store: %v", err)
	}
	t.Cleanup(func() { _ = users.Close() })

	srv := httptest.NewServer((&server.Server{
		Log:      logger,
		Users:    users,
		TokenTTL: time.Hour,
	}).Handler())
	t.Cleanup(srv.Close)

	// Signup, then login again to prove the stored hash verifies.
	token, err := httpstore.Signup(ctx, srv.URL, "dev@example.com", "hunter2")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := httpstore.Signup(ctx, srv.URL, "dev@example.com", "other"); err == nil {
		t.Fatal("duplicate signup should fail")
	}
	token2, err := httpstore.Login(ctx, srv.URL, "dev@example.com", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	client := httpstore.NewClient(srv.URL, token, logger)

	ds, err := client.Load(ctx)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	if len(ds.Tasks) != 0 {
		t.Fatalf("fresh account dataset = %+v", ds)
	}

	end := time.Now().UnixMilli()
	ds = &domain.Dataset{Tasks: []*domain.Task{{
		ID:   "task-1",
		Name: "deep work",
		Sessions: []*domain.Session{
			domain.ClosedSession(end-3_600_000, end),
			domain.NewOpenSession(end + 1000),
		},
	}}}
	if err := client.Save(ctx, ds); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Save twice to exercise the upsert path.
	if err := client.Save(ctx, ds); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	// A second credential for the same account sees the same blob, open
	// session included.
	other := httpstore.NewClient(srv.URL, token2, logger)
	got, err := other.Load(ctx)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Name != "deep work" {
		t.Fatalf("round-tripped dataset = %+v", got)
	}
	if got.Tasks[0].OpenSession() == nil {
		t.Fatal("open session lost in the round trip")
	}

	// A bogus token maps to ErrUnauthorized end to end.
	bad := httpstore.NewClient(srv.URL, "bogus", logger)
	if _, err := bad.Load(ctx); !errors.Is(err, ports.ErrUnauthorized) {
		t.Fatalf("bogus token err = %v, want ErrUnauthorized", err)
	}
}
