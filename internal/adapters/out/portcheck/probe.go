// Package portcheck implements the host port preflight adapter.
package portcheck

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/bnema/zerowrap"

	"github.com/bnema/sandboxer/internal/domain"
)

// Probe checks host ports by binding them briefly.
type Probe struct {
	listenConfig net.ListenConfig
}

// NewProbe creates a port probe.
func NewProbe() *Probe {
	return &Probe{}
}

// CheckAvailable binds the published address and releases it immediately.
// A bind failure is reported as a resource conflict.
func (p *Probe) CheckAvailable(ctx context.Context, port domain.PortMapping) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "portcheck",
		zerowrap.FieldAction:  "CheckAvailable",
		"port":                port.String(),
	})
	log := zerowrap.FromCtx(ctx)

	addr := net.JoinHostPort(port.HostIP, strconv.Itoa(int(port.HostPort)))

	switch port.Proto() {
	case "udp":
		conn, err := p.listenConfig.ListenPacket(ctx, "udp", addr)
		if err != nil {
			log.Debug().Err(err).Msg("host port unavailable")
			return fmt.Errorf("%w: %s/udp is already bound: %w", domain.ErrResourceConflict, addr, err)
		}
		return conn.Close()
	case "tcp":
		ln, err := p.listenConfig.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Debug().Err(err).Msg("host port unavailable")
			return fmt.Errorf("%w: %s/tcp is already bound: %w", domain.ErrResourceConflict, addr, err)
		}
		return ln.Close()
	}

	log.Debug().Msg("protocol not probed")
	return nil
}
