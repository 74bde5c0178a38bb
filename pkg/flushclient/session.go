// Package flushclient ties the protocol layers into one session against a
// cache mount address: port discovery, MOUNT handshake, the NFSv3 operations
// the flush workflow needs, and path resolution.
package flushclient

import (
	"net"
	"strconv"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/mount"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/rpc"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/metrics"
)

// Config selects the cache address and export for a session.
type Config struct {
	// Server is the cache mount address (hostname or IP).
	Server string

	// Export is the exported path to mount, e.g. "/1_1_1_0".
	Export string

	// CallTimeout bounds each RPC round trip. Zero selects the default.
	CallTimeout time.Duration

	// Flush carries the write-back sentinel values. A zero descriptor
	// selects the firmware defaults.
	Flush nfs.FlushDescriptor
}

// Session is one authenticated attachment to an export: a MOUNT connection,
// an NFS connection, and the export's root file handle. All NFS operations
// share the one NFS connection; the session is safe for concurrent use.
type Session struct {
	cfg     Config
	metrics metrics.RPCMetrics

	mount *mount.Client
	nfs   *nfs.Client
	root  nfs.FileHandle
}

// Connect establishes a session: discovers the MOUNT and NFS ports through
// the portmapper, verifies both programs answer NULL, and mounts the export
// to obtain the root file handle.
//
// Any failure here is fatal for the run; the error is returned with partial
// connections already closed.
func Connect(cfg Config) (*Session, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = rpc.DefaultCallTimeout
	}
	if cfg.Flush == (nfs.FlushDescriptor{}) {
		cfg.Flush = nfs.DefaultFlushDescriptor()
	}

	s := &Session{cfg: cfg, metrics: metrics.Get()}

	mountPort, err := rpc.GetPort(cfg.Server, rpc.ProgramMount, rpc.MountVersion, cfg.CallTimeout)
	if err != nil {
		return nil, err
	}
	nfsPort, err := rpc.GetPort(cfg.Server, rpc.ProgramNFS, rpc.NFSVersion, cfg.CallTimeout)
	if err != nil {
		return nil, err
	}
	logger.Debug("portmap: mount=%d nfs=%d on %s", mountPort, nfsPort, cfg.Server)

	cred := rpc.UnixAuth()

	mountRPC, err := rpc.Dial(hostPort(cfg.Server, mountPort), rpc.ProgramMount, rpc.MountVersion, cred)
	if err != nil {
		return nil, err
	}
	s.mount = mount.NewClient(mountRPC, cfg.CallTimeout)

	if err := s.mount.Null(); err != nil {
		s.mount.Close()
		return nil, err
	}

	root, err := s.mount.Mnt(cfg.Export)
	if err != nil {
		s.mount.Close()
		return nil, err
	}
	s.root = root
	logger.Debug("mount: export %s root handle %s", cfg.Export, root)

	nfsRPC, err := rpc.Dial(hostPort(cfg.Server, nfsPort), rpc.ProgramNFS, rpc.NFSVersion, cred)
	if err != nil {
		s.mount.Close()
		return nil, err
	}
	s.nfs = nfs.NewClient(nfsRPC, cfg.CallTimeout)

	if err := s.observe("null", func() error { return s.nfs.Null() }); err != nil {
		s.nfs.Close()
		s.mount.Close()
		return nil, err
	}

	return s, nil
}

func hostPort(host string, port uint32) string {
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}

// Root returns the export's root file handle.
func (s *Session) Root() nfs.FileHandle {
	return s.root
}

// Close detaches from the server: clears this host's mount-list entries and
// tears down both connections.
func (s *Session) Close() error {
	if err := s.mount.UmntAll(); err != nil {
		logger.Warn("umntall: %v", err)
	}
	s.mount.Close()
	return s.nfs.Close()
}

// observe wraps one RPC with metrics accounting.
func (s *Session) observe(proc string, fn func() error) error {
	s.metrics.CallStarted(proc)
	start := time.Now()
	err := fn()
	s.metrics.CallCompleted(proc, time.Since(start), err)
	return err
}

// GetAttr returns the attributes of fh.
func (s *Session) GetAttr(fh nfs.FileHandle) (*nfs.FileAttr, error) {
	var attr *nfs.FileAttr
	err := s.observe("getattr", func() error {
		var err error
		attr, err = s.nfs.GetAttr(fh)
		return err
	})
	return attr, err
}

// Lookup resolves name within the directory dirfh.
func (s *Session) Lookup(dirfh nfs.FileHandle, name string) (*nfs.LookupResult, error) {
	var res *nfs.LookupResult
	err := s.observe("lookup", func() error {
		var err error
		res, err = s.nfs.Lookup(dirfh, name)
		return err
	})
	return res, err
}

// FlushSync performs a blocking write-back of fh.
func (s *Session) FlushSync(fh nfs.FileHandle) (nfs.FlushState, error) {
	var state nfs.FlushState
	err := s.observe("flush_sync", func() error {
		var err error
		state, err = s.nfs.FlushSync(fh, s.cfg.Flush)
		return err
	})
	return state, err
}

// FlushAsync starts a write-back of fh without waiting for completion.
func (s *Session) FlushAsync(fh nfs.FileHandle) (nfs.FlushState, error) {
	var state nfs.FlushState
	err := s.observe("flush_async", func() error {
		var err error
		state, err = s.nfs.FlushAsync(fh, s.cfg.Flush)
		return err
	})
	return state, err
}

// FlushStatus probes the write-back state of fh.
func (s *Session) FlushStatus(fh nfs.FileHandle) (nfs.FlushState, error) {
	var state nfs.FlushState
	err := s.observe("flush_status", func() error {
		var err error
		state, err = s.nfs.FlushQuery(fh, s.cfg.Flush)
		return err
	})
	return state, err
}

// Exports lists the exports the server advertises.
func (s *Session) Exports() ([]mount.ExportEntry, error) {
	return s.mount.Export()
}
