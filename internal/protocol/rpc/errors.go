package rpc

import (
	"fmt"
	"time"
)

// ConnectError indicates the server could not be reached at all. It is fatal
// for the whole run: no connection exists, so no per-file recovery applies.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransportError indicates a single RPC failed at the connection level
// (send failure, connection reset, short read). It is not retried at this
// layer; retry policy belongs to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates no matching reply arrived within the per-call
// timeout. The connection stays open: other outstanding calls remain valid,
// and a late reply for this XID is discarded by the demultiplexer.
type TimeoutError struct {
	Proc    uint32
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rpc call proc=%d timed out after %s", e.Proc, e.Timeout)
}

// FaultError indicates the server replied but refused the call at the RPC
// layer: the reply carried an accept_stat other than SUCCESS, or the call
// was denied outright (version mismatch, authentication failure).
type FaultError struct {
	// Denied is true for MSG_DENIED replies, false for accepted replies
	// with a non-success accept_stat.
	Denied bool

	// Stat is the accept_stat (Denied=false) or reject_stat (Denied=true).
	Stat uint32

	// AuthStat carries the auth_stat value when Stat is RPCAuthError.
	AuthStat uint32
}

func (e *FaultError) Error() string {
	if e.Denied {
		if e.Stat == RPCAuthError {
			return fmt.Sprintf("rpc denied: auth error (auth_stat=%d)", e.AuthStat)
		}
		return "rpc denied: rpc version mismatch"
	}
	return fmt.Sprintf("rpc fault: %s", acceptStatString(e.Stat))
}

func acceptStatString(stat uint32) string {
	switch stat {
	case RPCProgUnavail:
		return "program unavailable"
	case RPCProgMismatch:
		return "program version mismatch"
	case RPCProcUnavail:
		return "procedure unavailable"
	case RPCGarbageArgs:
		return "garbage arguments"
	case RPCSystemErr:
		return "system error"
	default:
		return fmt.Sprintf("accept_stat %d", stat)
	}
}
