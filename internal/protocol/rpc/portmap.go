package rpc

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// GetPort asks the port mapper on host for the TCP port of (program,
// version), using the PMAPPROC_GETPORT procedure (RFC 1833).
//
// A short-lived connection to the well-known port 111 is used; it is closed
// before returning. A program that is not registered yields an error rather
// than port 0.
func GetPort(host string, program, version uint32, timeout time.Duration) (uint32, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(PortmapPort))

	client, err := Dial(addr, ProgramPortmap, PortmapVersion, NullAuth())
	if err != nil {
		return 0, err
	}
	defer client.Close()

	// struct mapping { prog, vers, prot, port }
	var args bytes.Buffer
	xdr.EncodeUint32(&args, program)
	xdr.EncodeUint32(&args, version)
	xdr.EncodeUint32(&args, IPProtoTCP)
	xdr.EncodeUint32(&args, 0)

	payload, err := client.Call(PortmapProcGetPort, args.Bytes(), timeout)
	if err != nil {
		return 0, fmt.Errorf("portmap getport prog=%d: %w", program, err)
	}

	port, err := xdr.DecodeUint32(bytes.NewReader(payload), "port")
	if err != nil {
		return 0, err
	}
	if port == 0 {
		return 0, fmt.Errorf("portmap: program %d version %d not registered on %s", program, version, host)
	}
	return port, nil
}
