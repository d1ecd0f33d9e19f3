package portcheck

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/sandboxer/internal/domain"
	"github.com/bnema/sandboxer/internal/testutils"
)

func TestProbe_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	busy := uint16(ln.Addr().(*net.TCPAddr).Port)

	probe := NewProbe()
	ctx := testutils.TestContext(t)

	err = probe.CheckAvailable(ctx, domain.PortMapping{HostIP: "127.0.0.1", HostPort: busy, ContainerPort: 2375})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResourceConflict)

	require.NoError(t, ln.Close())
	assert.NoError(t, probe.CheckAvailable(ctx, domain.PortMapping{HostIP: "127.0.0.1", HostPort: busy, ContainerPort: 2375}))
}

func TestProbe_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	busy := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	err = NewProbe().CheckAvailable(testutils.TestContext(t), domain.PortMapping{
		HostIP:        "127.0.0.1",
		HostPort:      busy,
		ContainerPort: 53,
		Protocol:      "udp",
	})
	assert.ErrorIs(t, err, domain.ErrResourceConflict)
}

func TestProbe_UnknownProtocolSkipped(t *testing.T) {
	err := NewProbe().CheckAvailable(testutils.TestContext(t), domain.PortMapping{
		HostPort:      9,
		ContainerPort: 9,
		Protocol:      "sctp",
	})
	assert.NoError(t, err)
}
