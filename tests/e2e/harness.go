package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"datosgw/internal/api"
	"datosgw/internal/config"
	"datosgw/internal/store/memory"
)

type systemUnderTest struct {
	BaseURL  string
	shutdown func()
}

func (s *systemUnderTest) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// startSystemUnderTest launches GATEWAY_SERVER_CMD, targets GATEWAY_SERVER_URL,
// or falls back to an in-process gateway over the memory store.
func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()

	if cmd := os.Getenv("GATEWAY_SERVER_CMD"); cmd != "" {
		sut, err := startExternalServer(t, cmd)
		if err != nil {
			t.Fatalf("start external server: %v", err)
		}
		return sut
	}

	if url := os.Getenv("GATEWAY_SERVER_URL"); url != "" {
		t.Logf("GATEWAY_SERVER_URL set; using existing server at %s", url)
		return &systemUnderTest{
			BaseURL: url,
			shutdown: func() {
				// External server; nothing to stop.
			},
		}
	}

	handler := api.NewServer(api.Options{
		Store:          memory.New(),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedOrigins: config.DefaultAllowedOrigins,
	})
	srv := httptest.NewServer(handler)
	return &systemUnderTest{
		BaseURL:  srv.URL,
		shutdown: srv.Close,
	}
}

func startExternalServer(t *testing.T, cmdStr string) (*systemUnderTest, error) {
	t.Helper()

	host, port, err := freeHostPort()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	cmd.Env = append(os.Environ(),
		"HOST="+host,
		"PORT="+strconv.Itoa(port),
		"STORE_DRIVER="+config.DriverMemory,
		"ENV_FILE="+os.DevNull,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("cmd start: %w", err)
	}

	baseURL := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	if err := waitForReady(baseURL, 10*time.Second); err != nil {
		_ = cmd.Process.Kill()
		cancel()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}

	shutdown := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(os.Interrupt)
			_, _ = cmd.Process.Wait()
		}
		cancel()
	}

	return &systemUnderTest{
		BaseURL:  baseURL,
		shutdown: shutdown,
	}, nil
}

func waitForReady(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/", nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func freeHostPort() (string, int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", 0, err
	}
	defer l.Close()
	addr := l.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, nil
}
