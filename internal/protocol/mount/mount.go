// Package mount implements the client side of the MOUNT version 3 protocol
// (RFC 1813 Appendix I). The tool uses it once per run: MNT obtains the root
// file handle of the export, and UMNTALL clears the server's mount list on
// shutdown.
package mount

import (
	"bytes"
	"fmt"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/rpc"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// MOUNT v3 procedure numbers.
const (
	ProcNull    = 0
	ProcMnt     = 1
	ProcDump    = 2
	ProcUmnt    = 3
	ProcUmntAll = 4
	ProcExport  = 5
)

// MountStatOK is the success value of mountstat3. The failure values reuse
// Unix errno numbers (RFC 1813 Appendix I, Section 5.1.5).
const MountStatOK = 0

// StatusError indicates the MOUNT server refused a request.
type StatusError struct {
	Op   string
	Stat uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mount %s: status %d", e.Op, e.Stat)
}

// ExportEntry is one export the server advertises, with the groups allowed
// to mount it.
type ExportEntry struct {
	Dir    string
	Groups []string
}

// Caller issues one RPC and returns the accepted result payload. Satisfied
// by *rpc.Client; tests substitute canned repliers.
type Caller interface {
	Call(proc uint32, args []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

var _ Caller = (*rpc.Client)(nil)

// Client issues MOUNT v3 procedures over a dedicated RPC connection.
type Client struct {
	rpc     Caller
	timeout time.Duration
}

// NewClient wraps an RPC client already bound to the MOUNT program.
func NewClient(rpcClient Caller, timeout time.Duration) *Client {
	return &Client{rpc: rpcClient, timeout: timeout}
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Null issues MOUNTPROC3_NULL.
func (c *Client) Null() error {
	_, err := c.rpc.Call(ProcNull, nil, c.timeout)
	return err
}

// Mnt asks the server for the root file handle of the export at dirpath.
// The reply's auth flavor list is decoded and discarded: this client always
// presents AUTH_UNIX, which every cache export accepts.
func (c *Client) Mnt(dirpath string) (nfs.FileHandle, error) {
	var args bytes.Buffer
	xdr.EncodeString(&args, dirpath)

	payload, err := c.rpc.Call(ProcMnt, args.Bytes(), c.timeout)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(payload)
	stat, err := xdr.DecodeUint32(reader, "fhs_status")
	if err != nil {
		return nil, err
	}
	if stat != MountStatOK {
		return nil, &StatusError{Op: "MNT", Stat: stat}
	}

	handle, err := xdr.DecodeOpaque(reader, "fhandle")
	if err != nil {
		return nil, err
	}
	fh := nfs.FileHandle(handle)
	if err := fh.Validate(); err != nil {
		return nil, &xdr.DecodeError{Field: "fhandle", Err: err}
	}

	flavorCount, err := xdr.DecodeUint32(reader, "auth_flavors length")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < flavorCount; i++ {
		if _, err := xdr.DecodeUint32(reader, "auth_flavor"); err != nil {
			return nil, err
		}
	}

	return fh, nil
}

// Umnt removes this client's entry for dirpath from the server's mount list.
// The procedure has no result body.
func (c *Client) Umnt(dirpath string) error {
	var args bytes.Buffer
	xdr.EncodeString(&args, dirpath)
	_, err := c.rpc.Call(ProcUmnt, args.Bytes(), c.timeout)
	return err
}

// UmntAll removes every entry this client host holds in the server's mount
// list. Used on shutdown so short-lived tool runs do not accumulate there.
func (c *Client) UmntAll() error {
	_, err := c.rpc.Call(ProcUmntAll, nil, c.timeout)
	return err
}

// Export lists the exports the server advertises. The reply is a linked
// list: each node is preceded by a boolean continuation flag, as is each
// group name within a node.
func (c *Client) Export() ([]ExportEntry, error) {
	payload, err := c.rpc.Call(ProcExport, nil, c.timeout)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(payload)
	var entries []ExportEntry

	for {
		follows, err := xdr.DecodeBool(reader, "export.value_follows")
		if err != nil {
			return nil, err
		}
		if !follows {
			break
		}

		var entry ExportEntry
		if entry.Dir, err = xdr.DecodeString(reader, "export.dir"); err != nil {
			return nil, err
		}

		for {
			groupFollows, err := xdr.DecodeBool(reader, "export.group_follows")
			if err != nil {
				return nil, err
			}
			if !groupFollows {
				break
			}
			group, err := xdr.DecodeString(reader, "export.group")
			if err != nil {
				return nil, err
			}
			entry.Groups = append(entry.Groups, group)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
