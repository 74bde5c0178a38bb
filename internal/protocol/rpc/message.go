package rpc

// RPCCallMessage is the fixed portion of an ONC RPC call header
// (RFC 1057 Section 8). It is marshalled with go-xdr: fields appear on the
// wire in declaration order.
type RPCCallMessage struct {
	XID        uint32
	MsgType    uint32 // 0 = CALL
	RPCVersion uint32 // always 2
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
}

// OpaqueAuth is the opaque_auth structure carried twice in every call header
// (credential and verifier).
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}
