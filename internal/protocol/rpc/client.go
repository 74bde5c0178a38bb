// Package rpc implements the client side of ONC RPC version 2 (RFC 1057)
// over a stream transport with standard record marking.
//
// One Client owns one TCP connection. The client is safe for concurrent
// callers: sends are serialized, and a background reader demultiplexes
// replies to waiting callers by transaction id, so a slow call never blocks
// an unrelated one and no call's result can leak to another caller.
package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	goxdr "github.com/rasky/go-xdr/xdr2"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// DialTimeout bounds the initial TCP connection attempt.
const DialTimeout = 10 * time.Second

// DefaultCallTimeout is the default per-call reply timeout. It matches the
// transport layer's single-attempt timeout in the HPC cache tooling.
const DefaultCallTimeout = 30 * time.Second

// maxRecordSize caps a reassembled reply record. NFSv3 replies handled by
// this client are small; anything larger is a protocol violation.
const maxRecordSize = 8 * 1024 * 1024

// ErrClientClosed is reported by calls outstanding when Close is invoked.
var ErrClientClosed = errors.New("rpc client closed")

// Client is an ONC RPC client bound to one (program, version) on one server.
type Client struct {
	addr    string
	program uint32
	version uint32
	cred    OpaqueAuth

	conn   net.Conn
	sendMu sync.Mutex

	xid atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]chan []byte
	readErr error

	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to addr ("host:port") and binds the client to the given
// program and version. The credential is attached to every call.
//
// Returns *ConnectError if the server is unreachable; this is fatal for the
// whole run by the error-propagation policy.
func Dial(addr string, program, version uint32, cred OpaqueAuth) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	c := &Client{
		addr:    addr,
		program: program,
		version: version,
		cred:    cred,
		conn:    conn,
		pending: make(map[uint32]chan []byte),
		done:    make(chan struct{}),
	}

	go c.readLoop()

	return c, nil
}

// Addr returns the remote address the client is connected to.
func (c *Client) Addr() string {
	return c.addr
}

// Close tears down the connection. Outstanding calls fail with
// ErrClientClosed.
func (c *Client) Close() error {
	c.fail(ErrClientClosed)
	return nil
}

// Call performs one RPC: encodes the call header plus args, sends it as a
// single record, and waits up to timeout for the reply matching this call's
// transaction id. On success it returns the result payload (the bytes after
// the accepted reply header).
//
// Error mapping:
//   - send failure               → *TransportError
//   - no reply within timeout    → *TimeoutError (connection stays usable)
//   - reply denied or not SUCCESS → *FaultError
//   - malformed reply header     → *xdr.DecodeError
func (c *Client) Call(proc uint32, args []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	xid := c.xid.Add(1)

	record, err := c.buildRecord(xid, proc, args)
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}

	ch := make(chan []byte, 1)
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, &TransportError{Op: "call", Err: err}
	}
	c.pending[xid] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, xid)
		c.mu.Unlock()
	}()

	if err := c.send(record, timeout); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return parseReply(reply, xid)
	case <-timer.C:
		// The deferred unregister makes a late reply for this xid stale;
		// the read loop will discard it.
		return nil, &TimeoutError{Proc: proc, Timeout: timeout}
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		return nil, &TransportError{Op: "call", Err: err}
	}
}

// buildRecord assembles [fragment header][rpc call header][args].
// The whole call always fits one fragment with the last-fragment bit set.
func (c *Client) buildRecord(xid, proc uint32, args []byte) ([]byte, error) {
	var buf bytes.Buffer

	call := RPCCallMessage{
		XID:        xid,
		MsgType:    RPCCall,
		RPCVersion: RPCVersion,
		Program:    c.program,
		Version:    c.version,
		Procedure:  proc,
		Cred:       c.cred,
		Verf:       NullAuth(),
	}

	if _, err := goxdr.Marshal(&buf, &call); err != nil {
		return nil, fmt.Errorf("marshal call header: %w", err)
	}
	buf.Write(args)

	body := buf.Bytes()
	record := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(record, LastFragment|uint32(len(body)))
	copy(record[4:], body)

	return record, nil
}

func (c *Client) send(record []byte, timeout time.Duration) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if _, err := c.conn.Write(record); err != nil {
		c.fail(err)
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// readLoop reassembles reply records and routes each to the caller waiting
// on its transaction id. Replies with no waiter (stale after a timeout, or
// duplicates) are dropped.
func (c *Client) readLoop() {
	for {
		record, err := readRecord(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		if len(record) < 4 {
			c.fail(fmt.Errorf("reply record too short: %d bytes", len(record)))
			return
		}

		xid := binary.BigEndian.Uint32(record[:4])

		c.mu.Lock()
		ch, ok := c.pending[xid]
		if ok {
			delete(c.pending, xid)
		}
		c.mu.Unlock()

		if !ok {
			logger.Debug("rpc: discarding reply with unknown xid=%d from %s", xid, c.addr)
			continue
		}
		ch <- record
	}
}

// fail marks the connection broken and releases every waiter.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.mu.Unlock()

	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readRecord reads one record-marked message: a sequence of fragments, each
// prefixed by a 4-byte header whose high bit marks the final fragment
// (RFC 1057 Section 10).
func readRecord(conn net.Conn) ([]byte, error) {
	var record bytes.Buffer

	for {
		var header [4]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return nil, err
		}

		word := binary.BigEndian.Uint32(header[:])
		last := word&LastFragment != 0
		size := word &^ LastFragment

		if uint64(record.Len())+uint64(size) > maxRecordSize {
			return nil, fmt.Errorf("reply record exceeds %d bytes", maxRecordSize)
		}

		if _, err := io.CopyN(&record, conn, int64(size)); err != nil {
			return nil, err
		}

		if last {
			return record.Bytes(), nil
		}
	}
}

// parseReply validates the reply header and returns the result payload.
//
// Reply layout (RFC 1057 Section 8):
//
//	[xid][msg_type=REPLY][reply_stat]
//	  MSG_ACCEPTED: [verf][accept_stat][payload | mismatch_info]
//	  MSG_DENIED:   [reject_stat][mismatch_info | auth_stat]
func parseReply(record []byte, expectXID uint32) ([]byte, error) {
	reader := bytes.NewReader(record)

	gotXID, err := xdr.DecodeUint32(reader, "xid")
	if err != nil {
		return nil, err
	}
	if gotXID != expectXID {
		// The demultiplexer routes by xid, so this cannot normally happen.
		return nil, &TransportError{Op: "reply", Err: fmt.Errorf("xid mismatch: got %d want %d", gotXID, expectXID)}
	}

	msgType, err := xdr.DecodeUint32(reader, "msg_type")
	if err != nil {
		return nil, err
	}
	if msgType != RPCReply {
		return nil, &TransportError{Op: "reply", Err: fmt.Errorf("msg_type %d is not REPLY", msgType)}
	}

	replyStat, err := xdr.DecodeUint32(reader, "reply_stat")
	if err != nil {
		return nil, err
	}

	switch replyStat {
	case RPCMsgAccepted:
		// Discard the verifier.
		if _, err := xdr.DecodeUint32(reader, "verf flavor"); err != nil {
			return nil, err
		}
		if _, err := xdr.DecodeOpaque(reader, "verf body"); err != nil {
			return nil, err
		}

		acceptStat, err := xdr.DecodeUint32(reader, "accept_stat")
		if err != nil {
			return nil, err
		}
		if acceptStat != RPCSuccess {
			return nil, &FaultError{Stat: acceptStat}
		}

		payload := make([]byte, reader.Len())
		_, _ = io.ReadFull(reader, payload)
		return payload, nil

	case RPCMsgDenied:
		rejectStat, err := xdr.DecodeUint32(reader, "reject_stat")
		if err != nil {
			return nil, err
		}
		if rejectStat == RPCAuthError {
			authStat, err := xdr.DecodeUint32(reader, "auth_stat")
			if err != nil {
				return nil, err
			}
			return nil, &FaultError{Denied: true, Stat: rejectStat, AuthStat: authStat}
		}
		return nil, &FaultError{Denied: true, Stat: rejectStat}

	default:
		return nil, &TransportError{Op: "reply", Err: fmt.Errorf("unexpected reply_stat %d", replyStat)}
	}
}
