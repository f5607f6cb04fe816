package raft

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// messageKind is the single framing byte spec §6 specifies ("a single
// framing byte distinguishes Handshake / AppendEntries / RequestVote /
// Heartbeat / InstallSnapshot"), not a service-description RPC framework —
// see DESIGN.md for why github.com/hashicorp/raft and grpc were rejected.
type messageKind byte

const (
	kindHandshake messageKind = iota + 1
	kindAppendEntries
	kindRequestVote
	kindHeartbeat
	kindInstallSnapshot
)

// frame is `{kind: u8, len: u32, payload: JSON}`, mirroring the teacher's
// own length-prefixed page/WAL record shape (encoding/binary for the fixed
// header, encoding/json for the payload — the same split cuemby/warren's
// pkg/manager/fsm.go uses for its Raft command envelope).
func writeFrame(w io.Writer, kind messageKind, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return common.Wrap(common.KindIOError, err, "marshaling raft frame")
	}
	header := make([]byte, 5)
	header[0] = byte(kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return common.Wrap(common.KindIOError, err, "writing raft frame header")
	}
	if _, err := w.Write(body); err != nil {
		return common.Wrap(common.KindIOError, err, "writing raft frame payload")
	}
	return nil
}

func readFrame(r io.Reader) (messageKind, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	kind := messageKind(header[0])
	n := binary.BigEndian.Uint32(header[1:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, common.Wrap(common.KindIOError, err, "reading raft frame payload")
	}
	return kind, body, nil
}

// Transport serves the five RPCs over plain TCP and dials peers to send
// them, per spec §4.K/§6.
type Transport struct {
	node     *Node
	listener net.Listener
	log      zerolog.Logger
}

// NewTransport binds addr and wires incoming connections to node's RPC
// handlers. Call Serve to start accepting.
func NewTransport(node *Node, addr string, log zerolog.Logger) (*Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, common.Wrap(common.KindIOError, err, "binding raft transport on %s", addr)
	}
	return &Transport{
		node:     node,
		listener: ln,
		log:      log.With().Str("component", "raft-transport").Logger(),
	}, nil
}

// Addr returns the bound local address.
func (t *Transport) Addr() string { return t.listener.Addr().String() }

// Serve accepts connections until closed; each connection handles a single
// request/response pair. Unknown message kinds are logged and dropped,
// never crash the server (spec §4.K).
func (t *Transport) Serve() error {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return err
		}
		go t.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (t *Transport) Close() error { return t.listener.Close() }

func (t *Transport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	kind, body, err := readFrame(r)
	if err != nil {
		if err != io.EOF {
			t.log.Warn().Err(err).Msg("failed to read raft frame")
		}
		return
	}

	switch kind {
	case kindHandshake:
		var req HandshakeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.log.Warn().Err(err).Msg("malformed handshake frame")
			return
		}
		writeFrame(conn, kindHandshake, t.node.Handshake(req))
	case kindAppendEntries:
		var req AppendEntriesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.log.Warn().Err(err).Msg("malformed append-entries frame")
			return
		}
		writeFrame(conn, kindAppendEntries, t.node.AppendEntries(req))
	case kindRequestVote:
		var req RequestVoteRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.log.Warn().Err(err).Msg("malformed request-vote frame")
			return
		}
		writeFrame(conn, kindRequestVote, t.node.RequestVote(req))
	case kindHeartbeat:
		var req HeartbeatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.log.Warn().Err(err).Msg("malformed heartbeat frame")
			return
		}
		writeFrame(conn, kindHeartbeat, t.node.Heartbeat(req))
	case kindInstallSnapshot:
		var req InstallSnapshotRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.log.Warn().Err(err).Msg("malformed install-snapshot frame")
			return
		}
		resp, err := t.node.InstallSnapshot(req, nil)
		if err != nil {
			t.log.Warn().Err(err).Msg("install snapshot failed")
			return
		}
		writeFrame(conn, kindInstallSnapshot, resp)
	default:
		t.log.Warn().Uint8("kind", uint8(kind)).Msg("dropping unknown raft message kind")
	}
}

// Client sends RPCs to a single peer address. A transport failure is
// returned as a KindClusterError; marking the peer disconnected is left to
// the caller (Driver.sendHeartbeats calls Node.MarkDisconnected).
type Client struct {
	addr   string
	dialTO time.Duration
}

func NewClient(addr string) *Client {
	return &Client{addr: addr, dialTO: 2 * time.Second}
}

func (c *Client) roundTrip(kind messageKind, req, resp any) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTO)
	if err != nil {
		return common.Wrap(common.KindClusterError, err, "connecting to raft peer %s", c.addr)
	}
	defer conn.Close()
	if err := writeFrame(conn, kind, req); err != nil {
		return err
	}
	_, body, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		return common.Wrap(common.KindClusterError, err, "reading raft response from %s", c.addr)
	}
	if err := json.Unmarshal(body, resp); err != nil {
		return common.Wrap(common.KindIOError, err, "decoding raft response from %s", c.addr)
	}
	return nil
}

func (c *Client) Handshake(req HandshakeRequest) (HandshakeResponse, error) {
	var resp HandshakeResponse
	err := c.roundTrip(kindHandshake, req, &resp)
	return resp, err
}

func (c *Client) AppendEntries(req AppendEntriesRequest) (AppendEntriesResponse, error) {
	var resp AppendEntriesResponse
	err := c.roundTrip(kindAppendEntries, req, &resp)
	return resp, err
}

func (c *Client) RequestVote(req RequestVoteRequest) (RequestVoteResponse, error) {
	var resp RequestVoteResponse
	err := c.roundTrip(kindRequestVote, req, &resp)
	return resp, err
}

func (c *Client) Heartbeat(req HeartbeatRequest) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := c.roundTrip(kindHeartbeat, req, &resp)
	return resp, err
}

func (c *Client) InstallSnapshot(req InstallSnapshotRequest) (InstallSnapshotResponse, error) {
	var resp InstallSnapshotResponse
	err := c.roundTrip(kindInstallSnapshot, req, &resp)
	return resp, err
}

func (c *Client) String() string { return fmt.Sprintf("raft-client(%s)", c.addr) }
