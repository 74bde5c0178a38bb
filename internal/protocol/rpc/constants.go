package rpc

// RPCVersion is the ONC RPC protocol version (RFC 1057). Always 2.
const RPCVersion = 2

// RPC Program Numbers
// These identify the RPC programs this client speaks to.
const (
	// ProgramPortmap is the port mapper program number (RFC 1833)
	ProgramPortmap = 100000

	// ProgramNFS is the NFS version 3 program number (RFC 1813)
	ProgramNFS = 100003

	// ProgramMount is the Mount protocol program number (RFC 1813 Appendix I)
	ProgramMount = 100005
)

// RPC Program Versions
const (
	// PortmapVersion is the port mapper protocol version
	PortmapVersion = 2

	// NFSVersion is the NFS protocol version
	NFSVersion = 3

	// MountVersion is the Mount protocol version
	MountVersion = 3
)

// PortmapPort is the fixed TCP port of the port mapper (RFC 1833).
const PortmapPort = 111

// Portmapper procedures (RFC 1833)
const (
	PortmapProcNull    = 0
	PortmapProcGetPort = 3
)

// IPProtoTCP is the protocol value used in GETPORT mappings.
const IPProtoTCP = 6

// RPC Message Types
const (
	// RPCCall indicates an RPC call message
	RPCCall = 0

	// RPCReply indicates an RPC reply message
	RPCReply = 1
)

// RPC Reply States
const (
	// RPCMsgAccepted indicates the RPC call was accepted
	RPCMsgAccepted = 0

	// RPCMsgDenied indicates the RPC call was denied
	RPCMsgDenied = 1
)

// RPC Accept Status (RFC 1057 Section 8)
const (
	// RPCSuccess indicates successful RPC execution
	RPCSuccess = 0

	// RPCProgUnavail indicates the program is not exported by the server
	RPCProgUnavail = 1

	// RPCProgMismatch indicates a program version mismatch
	RPCProgMismatch = 2

	// RPCProcUnavail indicates the procedure is unavailable
	RPCProcUnavail = 3

	// RPCGarbageArgs indicates the server could not decode the arguments
	RPCGarbageArgs = 4

	// RPCSystemErr indicates a server-side system error
	RPCSystemErr = 5
)

// RPC Reject Status
const (
	// RPCMismatch indicates an RPC version mismatch
	RPCMismatch = 0

	// RPCAuthError indicates the call was rejected for authentication reasons
	RPCAuthError = 1
)

// Authentication Flavors (RFC 1057 Section 9)
const (
	// AuthNull carries no authentication data
	AuthNull = 0

	// AuthUnix carries unix uid/gid credentials
	AuthUnix = 1
)

// LastFragment is the high bit of a record-marking header: set when the
// fragment is the final one of a record (RFC 1057 Section 10).
const LastFragment = 0x80000000
