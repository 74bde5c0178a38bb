// Package nfs implements the client side of the NFS version 3 protocol
// (RFC 1813): argument encoding, reply decoding, and the procedures this
// tool needs (NULL, GETATTR, LOOKUP, READDIRPLUS, COMMIT).
//
// It also carries the cache-appliance flush extension, which overloads
// COMMIT with reserved sentinel values to request immediate write-back of a
// file to backing storage.
package nfs

import "fmt"

// NFS3FileHandleSize is the maximum file handle length in NFSv3 (RFC 1813
// Section 2.5: NFS3_FHSIZE).
const NFS3FileHandleSize = 64

// VerifierSize is the length of writeverf3 and cookieverf3 (NFS3_WRITEVERFSIZE
// and NFS3_COOKIEVERFSIZE, both 8).
const VerifierSize = 8

// NFSv3 Procedure Numbers (RFC 1813 Section 3)
const (
	ProcNull        = 0
	ProcGetAttr     = 1
	ProcSetAttr     = 2
	ProcLookup      = 3
	ProcAccess      = 4
	ProcReadLink    = 5
	ProcRead        = 6
	ProcWrite       = 7
	ProcCreate      = 8
	ProcMkdir       = 9
	ProcSymlink     = 10
	ProcMknod       = 11
	ProcRemove      = 12
	ProcRmdir       = 13
	ProcRename      = 14
	ProcLink        = 15
	ProcReadDir     = 16
	ProcReadDirPlus = 17
	ProcFSStat      = 18
	ProcFSInfo      = 19
	ProcPathConf    = 20
	ProcCommit      = 21
)

// Status is an nfsstat3 value (RFC 1813 Section 2.6).
type Status int32

// NFSv3 status codes. Only a subset is ever produced by the procedures this
// client issues, but the full set is kept so any reply can be named.
const (
	StatusOK          Status = 0
	StatusPerm        Status = 1
	StatusNoEnt       Status = 2
	StatusIO          Status = 5
	StatusNXIO        Status = 6
	StatusAccess      Status = 13
	StatusExist       Status = 17
	StatusXDev        Status = 18
	StatusNoDev       Status = 19
	StatusNotDir      Status = 20
	StatusIsDir       Status = 21
	StatusInval       Status = 22
	StatusFBig        Status = 27
	StatusNoSpace     Status = 28
	StatusROFS        Status = 30
	StatusMLink       Status = 31
	StatusNameTooLong Status = 63
	StatusNotEmpty    Status = 66
	StatusDQuot       Status = 69
	StatusStale       Status = 70
	StatusRemote      Status = 71
	StatusBadHandle   Status = 10001
	StatusNotSync     Status = 10002
	StatusBadCookie   Status = 10003
	StatusNotSupp     Status = 10004
	StatusTooSmall    Status = 10005
	StatusServerFault Status = 10006
	StatusBadType     Status = 10007
	StatusJukebox     Status = 10008
)

var statusNames = map[Status]string{
	StatusOK:          "NFS3_OK",
	StatusPerm:        "NFS3ERR_PERM",
	StatusNoEnt:       "NFS3ERR_NOENT",
	StatusIO:          "NFS3ERR_IO",
	StatusNXIO:        "NFS3ERR_NXIO",
	StatusAccess:      "NFS3ERR_ACCES",
	StatusExist:       "NFS3ERR_EXIST",
	StatusXDev:        "NFS3ERR_XDEV",
	StatusNoDev:       "NFS3ERR_NODEV",
	StatusNotDir:      "NFS3ERR_NOTDIR",
	StatusIsDir:       "NFS3ERR_ISDIR",
	StatusInval:       "NFS3ERR_INVAL",
	StatusFBig:        "NFS3ERR_FBIG",
	StatusNoSpace:     "NFS3ERR_NOSPC",
	StatusROFS:        "NFS3ERR_ROFS",
	StatusMLink:       "NFS3ERR_MLINK",
	StatusNameTooLong: "NFS3ERR_NAMETOOLONG",
	StatusNotEmpty:    "NFS3ERR_NOTEMPTY",
	StatusDQuot:       "NFS3ERR_DQUOT",
	StatusStale:       "NFS3ERR_STALE",
	StatusRemote:      "NFS3ERR_REMOTE",
	StatusBadHandle:   "NFS3ERR_BADHANDLE",
	StatusNotSync:     "NFS3ERR_NOT_SYNC",
	StatusBadCookie:   "NFS3ERR_BAD_COOKIE",
	StatusNotSupp:     "NFS3ERR_NOTSUPP",
	StatusTooSmall:    "NFS3ERR_TOOSMALL",
	StatusServerFault: "NFS3ERR_SERVERFAULT",
	StatusBadType:     "NFS3ERR_BADTYPE",
	StatusJukebox:     "NFS3ERR_JUKEBOX",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("NFS3ERR_%d", int32(s))
}

// File Types (ftype3, RFC 1813 Section 2.5)
const (
	FileTypeRegular   = 1
	FileTypeDirectory = 2
	FileTypeBlock     = 3
	FileTypeChar      = 4
	FileTypeSymlink   = 5
	FileTypeSocket    = 6
	FileTypeFIFO      = 7
)
