package rpc

import (
	"bytes"
	"os"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// NullAuth returns an AUTH_NULL credential (no authentication data).
func NullAuth() OpaqueAuth {
	return OpaqueAuth{Flavor: AuthNull, Body: []byte{}}
}

// UnixAuth builds an AUTH_UNIX credential for the current process
// (RFC 1057 Section 9.2).
//
// Body layout: [stamp:uint32][machinename:string][uid:uint32][gid:uint32]
// [gids:uint32 array]. The cache accepts these without verification; they
// are carried so that flush requests are attributable in server logs.
func UnixAuth() OpaqueAuth {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	gids := []uint32{}
	if groups, err := os.Getgroups(); err == nil {
		// AUTH_UNIX allows at most 16 supplementary gids.
		if len(groups) > 16 {
			groups = groups[:16]
		}
		for _, g := range groups {
			gids = append(gids, uint32(g))
		}
	}

	var buf bytes.Buffer
	xdr.EncodeUint32(&buf, uint32(time.Now().Unix()))
	xdr.EncodeString(&buf, hostname)
	xdr.EncodeUint32(&buf, uint32(os.Getuid()))
	xdr.EncodeUint32(&buf, uint32(os.Getgid()))
	xdr.EncodeUint32(&buf, uint32(len(gids)))
	for _, g := range gids {
		xdr.EncodeUint32(&buf, g)
	}

	return OpaqueAuth{Flavor: AuthUnix, Body: buf.Bytes()}
}
