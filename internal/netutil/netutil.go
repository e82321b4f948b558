// Package netutil finds a port for the notebook server and the addresses it can be reached at.
package netutil

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"syscall"

	"dappled/internal/logger"
)

// candidatePorts returns n ports near port: the first five sequential, the
// rest random within [port-2n, port+2n].
func candidatePorts(port, n int) []int {
	ports := make([]int, 0, n)
	for i := 0; i < min(5, n); i++ {
		ports = append(ports, port+i)
	}
	for i := 0; i < n-5; i++ {
		ports = append(ports, max(1, port+rand.IntN(4*n+1)-2*n))
	}
	return ports
}

// FreePort returns the first port near port that can be bound on all
// interfaces, trying retries+1 candidates.
func FreePort(port, retries int) (int, error) {
	for _, p := range candidatePorts(port, retries+1) {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			got := l.Addr().(*net.TCPAddr).Port
			l.Close()
			return got, nil
		}
		switch {
		case errors.Is(err, syscall.EADDRINUSE):
			logger.Warn("[WARN] The port %d is already in use, trying another port.\n", p)
		case errors.Is(err, syscall.EACCES):
			logger.Warn("[WARN] Permission to listen on port %d denied\n", p)
		default:
			return 0, fmt.Errorf("failed to probe port %d: %w", p, err)
		}
	}
	return 0, fmt.Errorf("no free port found near %d after %d attempts", port, retries+1)
}

// IPv4Addresses lists the IPv4 addresses of the non-loopback interfaces, or
// 127.0.0.1 when there are none.
func IPv4Addresses() []string {
	var out []string
	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Debug("[DEBUG] Listing interfaces failed: %v\n", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				out = append(out, ip4.String())
			}
		}
	}
	if len(out) == 0 {
		return []string{"127.0.0.1"}
	}
	return out
}
