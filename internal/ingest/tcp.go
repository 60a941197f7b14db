package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
)

// maxTCPFrame bounds a single length-prefixed message. Anything larger
// means a desynced or hostile peer and drops the connection.
const maxTCPFrame = 65535

// TCPServer receives sensor envelopes over a stream transport, framed
// as a 4-byte little-endian length prefix followed by the raw envelope.
type TCPServer struct {
	logger *zap.Logger
	mux    *Mux
	addr   string
}

func NewTCPServer(logger *zap.Logger, mux *Mux, addr string) *TCPServer {
	return &TCPServer{logger: logger, mux: mux, addr: addr}
}

// Serve accepts connections until ctx is canceled. Each connection gets
// its own reader goroutine.
func (s *TCPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen sensor tcp: %w", err)
	}
	s.logger.Info("sensor tcp listening", zap.String("addr", s.addr))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("sensor tcp accept", zap.Error(err))
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()
	s.logger.Debug("sensor tcp client connected", zap.String("peer", peer))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	lenBuf := make([]byte, 4)
	frame := make([]byte, maxTCPFrame)
	for {
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			// EOF is a normal disconnect.
			return
		}
		msgLen := int(binary.LittleEndian.Uint32(lenBuf))
		if msgLen < entities.SensorHeaderSize || msgLen > maxTCPFrame {
			s.logger.Debug("sensor tcp bad frame length",
				zap.String("peer", peer), zap.Int("len", msgLen))
			return
		}
		if _, err := io.ReadFull(conn, frame[:msgLen]); err != nil {
			return
		}

		s.mux.Handle("tcp", frame[:msgLen])
	}
}
