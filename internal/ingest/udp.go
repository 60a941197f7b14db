package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

// UDPServer receives sensor envelopes as bare datagrams and echoes
// affect reports back to each sensor's last-seen origin address.
type UDPServer struct {
	logger *zap.Logger
	stats  *stats.Stats
	mux    *Mux
	addr   string

	mu      sync.RWMutex
	conn    *net.UDPConn
	origins map[uint32]*net.UDPAddr
}

func NewUDPServer(logger *zap.Logger, st *stats.Stats, mux *Mux, addr string) *UDPServer {
	return &UDPServer{
		logger:  logger,
		stats:   st,
		mux:     mux,
		addr:    addr,
		origins: make(map[uint32]*net.UDPAddr),
	}
}

// LocalAddr returns the bound address once Serve has started listening,
// or nil before that.
func (s *UDPServer) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve reads datagrams until ctx is canceled.
func (s *UDPServer) Serve(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve sensor udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen sensor udp: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("sensor udp listening", zap.String("addr", s.addr))

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
			return fmt.Errorf("sensor udp read: %w", err)
		}

		pkt, err := s.mux.Handle("udp", buf[:n])
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.origins[pkt.SensorID] = from
		s.mu.Unlock()
	}
}

// WriteReports drains the engine's report stream, echoing each report
// to its sensor's last-seen UDP origin. Sensors reached over TCP or
// MQTT have no origin here and their reports are skipped.
func (s *UDPServer) WriteReports(reports <-chan *entities.AffectReport) {
	for report := range reports {
		s.mu.RLock()
		conn := s.conn
		origin := s.origins[report.SensorID]
		s.mu.RUnlock()
		if conn == nil || origin == nil {
			continue
		}
		if _, err := conn.WriteToUDP(report.Encode(), origin); err != nil {
			s.logger.Debug("report write failed",
				zap.Uint32("sensor_id", report.SensorID), zap.Error(err))
			continue
		}
		s.stats.ReportSent()
	}
}
