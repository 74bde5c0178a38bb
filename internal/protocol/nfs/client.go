package nfs

import (
	"bytes"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/rpc"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// Caller issues one RPC and returns the accepted result payload. Satisfied
// by *rpc.Client; tests substitute canned repliers.
type Caller interface {
	Call(proc uint32, args []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

var _ Caller = (*rpc.Client)(nil)

// Client issues NFSv3 procedures over one shared RPC connection. It is safe
// for concurrent use: the underlying RPC client correlates concurrent calls
// by transaction id.
type Client struct {
	rpc     Caller
	timeout time.Duration
}

// NewClient wraps an RPC client already bound to the NFS program. timeout
// applies per call; zero selects rpc.DefaultCallTimeout.
func NewClient(rpcClient Caller, timeout time.Duration) *Client {
	return &Client{rpc: rpcClient, timeout: timeout}
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Null issues NFSPROC3_NULL: a no-op round trip that proves the server is
// answering NFS calls on this connection.
func (c *Client) Null() error {
	_, err := c.rpc.Call(ProcNull, nil, c.timeout)
	return err
}

// GetAttr issues NFSPROC3_GETATTR and returns the object's attributes.
func (c *Client) GetAttr(fh FileHandle) (*FileAttr, error) {
	var args bytes.Buffer
	xdr.EncodeOpaque(&args, fh)

	payload, err := c.rpc.Call(ProcGetAttr, args.Bytes(), c.timeout)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(payload)
	status, err := decodeStatus(reader)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, &StatusError{Op: "GETATTR", Status: status}
	}

	attr, err := decodeFileAttr(reader, "obj_attributes")
	if err != nil {
		return nil, err
	}
	return &attr, nil
}

// Lookup issues NFSPROC3_LOOKUP for name within the directory dirfh.
//
// The reply layouts differ by status (RFC 1813 Section 3.3.3): success
// carries the object handle plus optional object and directory attributes;
// failure carries only optional directory attributes.
func (c *Client) Lookup(dirfh FileHandle, name string) (*LookupResult, error) {
	var args bytes.Buffer
	xdr.EncodeOpaque(&args, dirfh)
	xdr.EncodeString(&args, name)

	payload, err := c.rpc.Call(ProcLookup, args.Bytes(), c.timeout)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(payload)
	status, err := decodeStatus(reader)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		// LOOKUP3resfail: dir_attributes only. Decoded and dropped so a
		// trailing-garbage reply is still caught.
		if _, err := decodePostOpAttr(reader, "dir_attributes"); err != nil {
			return nil, err
		}
		return nil, &StatusError{Op: "LOOKUP", Status: status}
	}

	var res LookupResult
	if res.Handle, err = decodeFileHandle(reader, "object"); err != nil {
		return nil, err
	}
	if res.Attr, err = decodePostOpAttr(reader, "obj_attributes"); err != nil {
		return nil, err
	}
	if res.DirAttr, err = decodePostOpAttr(reader, "dir_attributes"); err != nil {
		return nil, err
	}
	return &res, nil
}

// Commit issues NFSPROC3_COMMIT with explicit offset and count.
//
// Standard use flushes a byte range of server-buffered writes to stable
// storage. The flush extension reuses this procedure with sentinel offset
// and count values; see FlushDescriptor.
func (c *Client) Commit(fh FileHandle, offset uint64, count uint32) (*CommitResult, error) {
	var args bytes.Buffer
	xdr.EncodeOpaque(&args, fh)
	xdr.EncodeUint64(&args, offset)
	xdr.EncodeUint32(&args, count)

	payload, err := c.rpc.Call(ProcCommit, args.Bytes(), c.timeout)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(payload)
	status, err := decodeStatus(reader)
	if err != nil {
		return nil, err
	}

	var res CommitResult
	if res.WCC, err = decodeWccData(reader, "file_wcc"); err != nil {
		return nil, err
	}
	if status != StatusOK {
		return &res, &StatusError{Op: "COMMIT", Status: status}
	}

	if res.Verifier, err = xdr.DecodeFixedOpaque(reader, VerifierSize, "verf"); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadDirPlus issues NFSPROC3_READDIRPLUS and returns one page of entries.
// cookie and cookieVerf continue a paged listing; both zero start from the
// beginning (pass nil for the initial verifier).
func (c *Client) ReadDirPlus(dirfh FileHandle, cookie uint64, cookieVerf []byte, dirCount, maxCount uint32) (*ReadDirPlusResult, error) {
	if cookieVerf == nil {
		cookieVerf = make([]byte, VerifierSize)
	}

	var args bytes.Buffer
	xdr.EncodeOpaque(&args, dirfh)
	xdr.EncodeUint64(&args, cookie)
	args.Write(cookieVerf)
	xdr.EncodeUint32(&args, dirCount)
	xdr.EncodeUint32(&args, maxCount)

	payload, err := c.rpc.Call(ProcReadDirPlus, args.Bytes(), c.timeout)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(payload)
	status, err := decodeStatus(reader)
	if err != nil {
		return nil, err
	}

	var res ReadDirPlusResult
	if res.DirAttr, err = decodePostOpAttr(reader, "dir_attributes"); err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, &StatusError{Op: "READDIRPLUS", Status: status}
	}

	if res.CookieVerf, err = xdr.DecodeFixedOpaque(reader, VerifierSize, "cookieverf"); err != nil {
		return nil, err
	}

	for {
		follows, err := xdr.DecodeBool(reader, "entry.value_follows")
		if err != nil {
			return nil, err
		}
		if !follows {
			break
		}

		var entry DirEntry
		if entry.FileID, err = xdr.DecodeUint64(reader, "entry.fileid"); err != nil {
			return nil, err
		}
		if entry.Name, err = xdr.DecodeString(reader, "entry.name"); err != nil {
			return nil, err
		}
		if entry.Cookie, err = xdr.DecodeUint64(reader, "entry.cookie"); err != nil {
			return nil, err
		}
		if entry.Attr, err = decodePostOpAttr(reader, "entry.name_attributes"); err != nil {
			return nil, err
		}

		handleFollows, err := xdr.DecodeBool(reader, "entry.handle_follows")
		if err != nil {
			return nil, err
		}
		if handleFollows {
			if entry.Handle, err = decodeFileHandle(reader, "entry.name_handle"); err != nil {
				return nil, err
			}
		}

		res.Entries = append(res.Entries, entry)
	}

	if res.EOF, err = xdr.DecodeBool(reader, "eof"); err != nil {
		return nil, err
	}

	logger.Debug("nfs: readdirplus returned %d entries eof=%v", len(res.Entries), res.EOF)
	return &res, nil
}

func decodeStatus(reader *bytes.Reader) (Status, error) {
	v, err := xdr.DecodeEnum(reader, "status")
	if err != nil {
		return 0, err
	}
	return Status(v), nil
}
