package nfs

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// ============================================================================
// File Handles
// ============================================================================

// FileHandle is an opaque NFSv3 file handle (nfs_fh3). Handles are
// server-assigned tokens up to NFS3FileHandleSize bytes; the client never
// interprets their contents.
type FileHandle []byte

// String renders the handle as hex for logs and diagnostics.
func (fh FileHandle) String() string {
	return hex.EncodeToString(fh)
}

// Validate checks the handle length against the protocol limit.
func (fh FileHandle) Validate() error {
	if len(fh) == 0 {
		return fmt.Errorf("file handle is empty")
	}
	if len(fh) > NFS3FileHandleSize {
		return fmt.Errorf("file handle length %d exceeds maximum %d", len(fh), NFS3FileHandleSize)
	}
	return nil
}

func decodeFileHandle(reader io.Reader, field string) (FileHandle, error) {
	data, err := xdr.DecodeOpaque(reader, field)
	if err != nil {
		return nil, err
	}
	fh := FileHandle(data)
	if err := fh.Validate(); err != nil {
		return nil, &xdr.DecodeError{Field: field, Err: err}
	}
	return fh, nil
}

// ============================================================================
// Attributes
// ============================================================================

// TimeVal is an nfstime3: seconds and nanoseconds since the Unix epoch.
type TimeVal struct {
	Seconds uint32
	Nanos   uint32
}

// SpecData is a specdata3 device number pair.
type SpecData struct {
	Major uint32
	Minor uint32
}

// FileAttr is a fattr3 (RFC 1813 Section 2.5): the full attribute set a
// server returns for a file system object.
type FileAttr struct {
	Type   int32
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Used   uint64
	Rdev   SpecData
	FSID   uint64
	FileID uint64
	Atime  TimeVal
	Mtime  TimeVal
	Ctime  TimeVal
}

// IsDir reports whether the attributes describe a directory.
func (a *FileAttr) IsDir() bool {
	return a.Type == FileTypeDirectory
}

func decodeTimeVal(reader io.Reader, field string) (TimeVal, error) {
	var t TimeVal
	var err error
	if t.Seconds, err = xdr.DecodeUint32(reader, field+".seconds"); err != nil {
		return t, err
	}
	if t.Nanos, err = xdr.DecodeUint32(reader, field+".nseconds"); err != nil {
		return t, err
	}
	return t, nil
}

func decodeFileAttr(reader io.Reader, field string) (FileAttr, error) {
	var a FileAttr
	var err error
	if a.Type, err = xdr.DecodeEnum(reader, field+".type"); err != nil {
		return a, err
	}
	if a.Mode, err = xdr.DecodeUint32(reader, field+".mode"); err != nil {
		return a, err
	}
	if a.Nlink, err = xdr.DecodeUint32(reader, field+".nlink"); err != nil {
		return a, err
	}
	if a.UID, err = xdr.DecodeUint32(reader, field+".uid"); err != nil {
		return a, err
	}
	if a.GID, err = xdr.DecodeUint32(reader, field+".gid"); err != nil {
		return a, err
	}
	if a.Size, err = xdr.DecodeUint64(reader, field+".size"); err != nil {
		return a, err
	}
	if a.Used, err = xdr.DecodeUint64(reader, field+".used"); err != nil {
		return a, err
	}
	if a.Rdev.Major, err = xdr.DecodeUint32(reader, field+".rdev.major"); err != nil {
		return a, err
	}
	if a.Rdev.Minor, err = xdr.DecodeUint32(reader, field+".rdev.minor"); err != nil {
		return a, err
	}
	if a.FSID, err = xdr.DecodeUint64(reader, field+".fsid"); err != nil {
		return a, err
	}
	if a.FileID, err = xdr.DecodeUint64(reader, field+".fileid"); err != nil {
		return a, err
	}
	if a.Atime, err = decodeTimeVal(reader, field+".atime"); err != nil {
		return a, err
	}
	if a.Mtime, err = decodeTimeVal(reader, field+".mtime"); err != nil {
		return a, err
	}
	if a.Ctime, err = decodeTimeVal(reader, field+".ctime"); err != nil {
		return a, err
	}
	return a, nil
}

// decodePostOpAttr reads a post_op_attr: a boolean discriminant followed by
// fattr3 when present. Returns nil when the server omitted attributes.
func decodePostOpAttr(reader io.Reader, field string) (*FileAttr, error) {
	present, err := xdr.DecodeBool(reader, field+".attributes_follow")
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	attr, err := decodeFileAttr(reader, field)
	if err != nil {
		return nil, err
	}
	return &attr, nil
}

// WccAttr is the wcc_attr subset of attributes carried in pre-operation
// cache consistency data.
type WccAttr struct {
	Size  uint64
	Mtime TimeVal
	Ctime TimeVal
}

// WccData is weak cache consistency data (RFC 1813 Section 2.6): optional
// before/after attributes around a modifying operation.
type WccData struct {
	Before *WccAttr
	After  *FileAttr
}

func decodeWccData(reader io.Reader, field string) (WccData, error) {
	var w WccData

	present, err := xdr.DecodeBool(reader, field+".before.attributes_follow")
	if err != nil {
		return w, err
	}
	if present {
		var pre WccAttr
		if pre.Size, err = xdr.DecodeUint64(reader, field+".before.size"); err != nil {
			return w, err
		}
		if pre.Mtime, err = decodeTimeVal(reader, field+".before.mtime"); err != nil {
			return w, err
		}
		if pre.Ctime, err = decodeTimeVal(reader, field+".before.ctime"); err != nil {
			return w, err
		}
		w.Before = &pre
	}

	if w.After, err = decodePostOpAttr(reader, field+".after"); err != nil {
		return w, err
	}
	return w, nil
}

// ============================================================================
// Procedure Results
// ============================================================================

// LookupResult is a successful LOOKUP3res: the resolved handle plus any
// attributes the server volunteered for the object and its directory.
type LookupResult struct {
	Handle  FileHandle
	Attr    *FileAttr
	DirAttr *FileAttr
}

// CommitResult is a COMMIT3res. On success Verifier holds the server's write
// verifier; WCC is present on both success and failure.
type CommitResult struct {
	WCC      WccData
	Verifier []byte
}

// DirEntry is one entryplus3 from a READDIRPLUS reply.
type DirEntry struct {
	FileID uint64
	Name   string
	Cookie uint64
	Attr   *FileAttr
	Handle FileHandle // nil when the server omitted the handle
}

// ReadDirPlusResult is one page of a READDIRPLUS listing. When EOF is false
// the caller continues with the last entry's Cookie and the returned
// CookieVerf.
type ReadDirPlusResult struct {
	DirAttr    *FileAttr
	CookieVerf []byte
	Entries    []DirEntry
	EOF        bool
}
