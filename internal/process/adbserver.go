package process

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

// defaultADBPort is where adb clients look for the server.
const defaultADBPort = 5037

// ADBServer returns a Config running "adb -P <port> nodaemon server".
//
// A server already listening on the port (started by an emulator or an
// earlier adb call) is left alone and the manager reports StatusExternal.
// While running, the health check dials the port.
func ADBServer(cfg config.ADBConfig) Config {
	port := cfg.ServerPort
	if port == 0 {
		port = defaultADBPort
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	pc := DefaultConfig("adb-server", cfg.Path, []string{"-P", strconv.Itoa(port), "nodaemon", "server"})
	pc.HealthCheckFunc = func(ctx context.Context) error { return dialCheck(ctx, addr) }
	pc.Preflight = func(ctx context.Context) error {
		if dialCheck(ctx, addr) == nil {
			return fmt.Errorf("%w: adb server on %s", ErrAlreadyServing, addr)
		}
		return nil
	}
	return pc
}

func dialCheck(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("adb server not reachable on %s: %w", addr, err)
	}
	return conn.Close()
}
