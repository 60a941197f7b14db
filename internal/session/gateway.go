package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

// Gateway is the device-facing datagram endpoint. It decodes packets
// into the registry and implements Sender for replies; the origin
// address string doubles as the session identity.
type Gateway struct {
	logger *zap.Logger
	stats  *stats.Stats
	addr   string

	mu   sync.RWMutex
	conn *net.UDPConn
}

func NewGateway(logger *zap.Logger, st *stats.Stats, addr string) *Gateway {
	return &Gateway{logger: logger, stats: st, addr: addr}
}

// LocalAddr returns the bound address once Serve has started listening.
func (g *Gateway) LocalAddr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.conn == nil {
		return nil
	}
	return g.conn.LocalAddr()
}

// Serve reads device datagrams into the registry until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, registry *Registry) error {
	udpAddr, err := net.ResolveUDPAddr("udp", g.addr)
	if err != nil {
		return fmt.Errorf("resolve device addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen device udp: %w", err)
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	g.logger.Info("device gateway listening", zap.String("addr", g.addr))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("device udp read: %w", err)
		}

		pkt, err := entities.DecodePacket(buf[:n])
		if err != nil {
			// Malformed datagrams are dropped and counted, never a fault.
			g.stats.DeviceMalformed()
			continue
		}
		g.stats.DevicePacket()
		registry.Dispatch(from.String(), pkt)
	}
}

// Send writes one packet to a device endpoint. Fire-and-forget: errors
// are logged, never retried, the protocol tolerates loss.
func (g *Gateway) Send(endpoint string, pkt *entities.Packet) {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn == nil {
		return
	}
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		g.logger.Debug("bad reply endpoint", zap.String("endpoint", endpoint), zap.Error(err))
		return
	}
	if _, err := conn.WriteToUDP(pkt.Encode(), addr); err != nil {
		g.logger.Debug("reply send failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
}

// RelayResponses drains the bridge's response stream into the registry
// until the bridge closes it.
func RelayResponses(registry *Registry, responses <-chan repositories.ResponseAudio) {
	for resp := range responses {
		registry.DeliverResponse(resp)
	}
}
