package cluster

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/multierr"
)

// dialRetryInterval and dialTimeout pace non-root members waiting for the
// root's listener to come up.
const (
	dialRetryInterval = 50 * time.Millisecond
	dialTimeout       = 10 * time.Second
)

// TCPGroup implements Group over plain TCP: rank 0 listens, every other rank
// dials it, and all-gather runs gather-then-broadcast through rank 0.
type TCPGroup struct {
	cfg   Config
	ln    net.Listener
	peers []net.Conn // root: indexed by rank, entry 0 nil
	conn  net.Conn   // non-root: connection to root
}

var _ Group = (*TCPGroup)(nil)

// Join forms the group: rank 0 binds MasterAddr:MasterPort and accepts
// world-size-1 members; other ranks dial with retry and introduce themselves
// with their rank. On rank 0 Join returns once every member has connected;
// on other ranks it returns once the connection to rank 0 is established.
func Join(cfg Config) (*TCPGroup, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	g := &TCPGroup{cfg: cfg}
	if cfg.WorldRank == 0 {
		if err := g.listen(); err != nil {
			return nil, err
		}
		return g, nil
	}
	if err := g.dial(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *TCPGroup) listen() error {
	addr := fmt.Sprintf("%s:%d", g.cfg.MasterAddr, g.cfg.MasterPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cluster: listening on %s: %w", addr, err)
	}
	g.ln = ln
	g.peers = make([]net.Conn, g.cfg.WorldSize)
	for i := 1; i < g.cfg.WorldSize; i++ {
		conn, err := ln.Accept()
		if err != nil {
			g.Close()
			return fmt.Errorf("cluster: accepting member: %w", err)
		}
		var hello [4]byte
		if _, err := io.ReadFull(conn, hello[:]); err != nil {
			g.Close()
			return fmt.Errorf("cluster: reading member hello: %w", err)
		}
		rank := int(binary.BigEndian.Uint32(hello[:]))
		if rank <= 0 || rank >= g.cfg.WorldSize || g.peers[rank] != nil {
			g.Close()
			return fmt.Errorf("cluster: invalid member rank %d", rank)
		}
		g.peers[rank] = conn
	}
	return nil
}

func (g *TCPGroup) dial() error {
	addr := fmt.Sprintf("%s:%d", g.cfg.MasterAddr, g.cfg.MasterPort)
	deadline := time.Now().Add(dialTimeout)
	var conn net.Conn
	var err error
	for {
		conn, err = net.DialTimeout("tcp", addr, dialRetryInterval)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("cluster: dialing root at %s: %w", addr, err)
		}
		time.Sleep(dialRetryInterval)
	}
	var hello [4]byte
	binary.BigEndian.PutUint32(hello[:], uint32(g.cfg.WorldRank))
	if _, err := conn.Write(hello[:]); err != nil {
		conn.Close()
		return fmt.Errorf("cluster: sending hello: %w", err)
	}
	g.conn = conn
	return nil
}

func (g *TCPGroup) WorldSize() int { return g.cfg.WorldSize }
func (g *TCPGroup) WorldRank() int { return g.cfg.WorldRank }
func (g *TCPGroup) LocalSize() int { return g.cfg.LocalSize }
func (g *TCPGroup) LocalRank() int { return g.cfg.LocalRank }

// AllGather contributes buf and returns the rank-ordered concatenation of
// every member's contribution. All members must pass equal-length buffers.
func (g *TCPGroup) AllGather(buf []byte) ([]byte, error) {
	if g.cfg.WorldRank == 0 {
		return g.gatherRoot(buf)
	}
	return g.gatherMember(buf)
}

func (g *TCPGroup) gatherRoot(buf []byte) ([]byte, error) {
	out := make([]byte, len(buf)*g.cfg.WorldSize)
	copy(out, buf)
	for rank := 1; rank < g.cfg.WorldSize; rank++ {
		chunk, err := readFrame(g.peers[rank])
		if err != nil {
			return nil, fmt.Errorf("cluster: gathering from rank %d: %w", rank, err)
		}
		if len(chunk) != len(buf) {
			return nil, fmt.Errorf("cluster: rank %d contributed %d bytes, want %d", rank, len(chunk), len(buf))
		}
		copy(out[rank*len(buf):], chunk)
	}
	for rank := 1; rank < g.cfg.WorldSize; rank++ {
		if err := writeFrame(g.peers[rank], out); err != nil {
			return nil, fmt.Errorf("cluster: broadcasting to rank %d: %w", rank, err)
		}
	}
	return out, nil
}

func (g *TCPGroup) gatherMember(buf []byte) ([]byte, error) {
	if err := writeFrame(g.conn, buf); err != nil {
		return nil, fmt.Errorf("cluster: contributing to root: %w", err)
	}
	out, err := readFrame(g.conn)
	if err != nil {
		return nil, fmt.Errorf("cluster: reading gathered result: %w", err)
	}
	if len(out) != len(buf)*g.cfg.WorldSize {
		return nil, fmt.Errorf("cluster: gathered %d bytes, want %d", len(out), len(buf)*g.cfg.WorldSize)
	}
	return out, nil
}

// Close tears down the group's sockets.
func (g *TCPGroup) Close() error {
	var err error
	if g.ln != nil {
		err = multierr.Append(err, g.ln.Close())
		g.ln = nil
	}
	for i, conn := range g.peers {
		if conn != nil {
			err = multierr.Append(err, conn.Close())
			g.peers[i] = nil
		}
	}
	if g.conn != nil {
		err = multierr.Append(err, g.conn.Close())
		g.conn = nil
	}
	return err
}

func writeFrame(conn net.Conn, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
