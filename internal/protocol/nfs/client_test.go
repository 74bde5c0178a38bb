package nfs

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// ============================================================================
// Fake Caller
// ============================================================================

// fakeCaller records the last call and answers with a canned payload.
type fakeCaller struct {
	lastProc uint32
	lastArgs []byte
	reply    []byte
	err      error
}

func (f *fakeCaller) Call(proc uint32, args []byte, _ time.Duration) ([]byte, error) {
	f.lastProc = proc
	f.lastArgs = args
	return f.reply, f.err
}

func (f *fakeCaller) Close() error { return nil }

// ============================================================================
// Reply Builders
// ============================================================================

func encodeStatus(buf *bytes.Buffer, status Status) {
	xdr.EncodeUint32(buf, uint32(status))
}

// encodeAttr writes a fattr3 for a plausible object.
func encodeAttr(buf *bytes.Buffer, ftype int32, fileID uint64, mtimeSec uint32) {
	xdr.EncodeUint32(buf, uint32(ftype)) // type
	xdr.EncodeUint32(buf, 0o644)         // mode
	xdr.EncodeUint32(buf, 1)             // nlink
	xdr.EncodeUint32(buf, 1000)          // uid
	xdr.EncodeUint32(buf, 1000)          // gid
	xdr.EncodeUint64(buf, 4096)          // size
	xdr.EncodeUint64(buf, 4096)          // used
	xdr.EncodeUint32(buf, 0)             // rdev major
	xdr.EncodeUint32(buf, 0)             // rdev minor
	xdr.EncodeUint64(buf, 1)             // fsid
	xdr.EncodeUint64(buf, fileID)        // fileid
	xdr.EncodeUint32(buf, mtimeSec)      // atime
	xdr.EncodeUint32(buf, 0)
	xdr.EncodeUint32(buf, mtimeSec) // mtime
	xdr.EncodeUint32(buf, 0)
	xdr.EncodeUint32(buf, mtimeSec) // ctime
	xdr.EncodeUint32(buf, 0)
}

func encodePostOpAttr(buf *bytes.Buffer, present bool, ftype int32, fileID uint64) {
	xdr.EncodeBool(buf, present)
	if present {
		encodeAttr(buf, ftype, fileID, 1700000000)
	}
}

func newClient(reply []byte) (*Client, *fakeCaller) {
	fake := &fakeCaller{reply: reply}
	return NewClient(fake, time.Second), fake
}

// ============================================================================
// GETATTR Tests
// ============================================================================

func TestGetAttr(t *testing.T) {
	t.Run("DecodesAttributes", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		encodeAttr(&reply, FileTypeRegular, 12345, 1700000000)

		client, fake := newClient(reply.Bytes())
		attr, err := client.GetAttr(FileHandle{0xAA, 0xBB})
		require.NoError(t, err)

		assert.Equal(t, uint32(ProcGetAttr), fake.lastProc)
		assert.Equal(t, uint64(12345), attr.FileID)
		assert.Equal(t, uint32(1700000000), attr.Mtime.Seconds)
		assert.False(t, attr.IsDir())
	})

	t.Run("StaleHandleReturnsStatusError", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusStale)

		client, _ := newClient(reply.Bytes())
		_, err := client.GetAttr(FileHandle{0xAA})

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, StatusStale, statusErr.Status)
		assert.Contains(t, statusErr.Error(), "NFS3ERR_STALE")
	})

	t.Run("EncodesHandleAsOpaque", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		encodeAttr(&reply, FileTypeRegular, 1, 0)

		client, fake := newClient(reply.Bytes())
		_, err := client.GetAttr(FileHandle{0xAA, 0xBB, 0xCC})
		require.NoError(t, err)

		assert.Equal(t, []byte{
			0, 0, 0, 3,
			0xAA, 0xBB, 0xCC, 0,
		}, fake.lastArgs)
	})
}

// ============================================================================
// LOOKUP Tests
// ============================================================================

func TestLookup(t *testing.T) {
	dirfh := FileHandle{0x01, 0x02, 0x03, 0x04}

	t.Run("DecodesHandleAndAttributes", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		xdr.EncodeOpaque(&reply, []byte{0x0A, 0x0B})       // object handle
		encodePostOpAttr(&reply, true, FileTypeRegular, 7) // obj_attributes
		encodePostOpAttr(&reply, false, 0, 0)              // dir_attributes

		client, fake := newClient(reply.Bytes())
		res, err := client.Lookup(dirfh, "testfile")
		require.NoError(t, err)

		assert.Equal(t, uint32(ProcLookup), fake.lastProc)
		assert.Equal(t, FileHandle{0x0A, 0x0B}, res.Handle)
		require.NotNil(t, res.Attr)
		assert.Equal(t, uint64(7), res.Attr.FileID)
		assert.Nil(t, res.DirAttr)
	})

	t.Run("ArgsCarryDirHandleAndName", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		xdr.EncodeOpaque(&reply, []byte{0x0A})
		encodePostOpAttr(&reply, false, 0, 0)
		encodePostOpAttr(&reply, false, 0, 0)

		client, fake := newClient(reply.Bytes())
		_, err := client.Lookup(dirfh, "testdir")
		require.NoError(t, err)

		reader := bytes.NewReader(fake.lastArgs)
		gotFH, err := xdr.DecodeOpaque(reader, "dir")
		require.NoError(t, err)
		assert.Equal(t, []byte(dirfh), gotFH)

		name, err := xdr.DecodeString(reader, "name")
		require.NoError(t, err)
		assert.Equal(t, "testdir", name)
	})

	t.Run("NoEntReturnsStatusError", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusNoEnt)
		encodePostOpAttr(&reply, false, 0, 0) // dir_attributes on failure

		client, _ := newClient(reply.Bytes())
		_, err := client.Lookup(dirfh, "missing")

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, StatusNoEnt, statusErr.Status)
	})

	t.Run("OversizedHandleRejected", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		xdr.EncodeOpaque(&reply, make([]byte, NFS3FileHandleSize+1))
		encodePostOpAttr(&reply, false, 0, 0)
		encodePostOpAttr(&reply, false, 0, 0)

		client, _ := newClient(reply.Bytes())
		_, err := client.Lookup(dirfh, "weird")

		var decodeErr *xdr.DecodeError
		require.True(t, errors.As(err, &decodeErr))
	})

	t.Run("TruncatedReplyReturnsDecodeError", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		reply.Write([]byte{0, 0, 0, 8, 0xAA}) // handle length 8, 1 byte present

		client, _ := newClient(reply.Bytes())
		_, err := client.Lookup(dirfh, "short")

		var decodeErr *xdr.DecodeError
		require.True(t, errors.As(err, &decodeErr))
	})
}

// ============================================================================
// COMMIT Tests
// ============================================================================

func TestCommit(t *testing.T) {
	fh := FileHandle{0xFE, 0xED}

	t.Run("ArgsCarryOffsetAndCount", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		xdr.EncodeBool(&reply, false)         // wcc before absent
		encodePostOpAttr(&reply, false, 0, 0) // wcc after absent
		reply.Write(make([]byte, VerifierSize))

		client, fake := newClient(reply.Bytes())
		_, err := client.Commit(fh, 0x1234ABCDDEADDEAD, 0xABADBEEF)
		require.NoError(t, err)

		assert.Equal(t, uint32(ProcCommit), fake.lastProc)

		reader := bytes.NewReader(fake.lastArgs)
		_, err = xdr.DecodeOpaque(reader, "fh")
		require.NoError(t, err)

		offset, err := xdr.DecodeUint64(reader, "offset")
		require.NoError(t, err)
		assert.Equal(t, uint64(0x1234ABCDDEADDEAD), offset)

		count, err := xdr.DecodeUint32(reader, "count")
		require.NoError(t, err)
		assert.Equal(t, uint32(0xABADBEEF), count)
	})

	t.Run("SuccessCarriesVerifier", func(t *testing.T) {
		verf := []byte{1, 2, 3, 4, 5, 6, 7, 8}

		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		xdr.EncodeBool(&reply, false)
		encodePostOpAttr(&reply, true, FileTypeRegular, 9)
		reply.Write(verf)

		client, _ := newClient(reply.Bytes())
		res, err := client.Commit(fh, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, verf, res.Verifier)
		require.NotNil(t, res.WCC.After)
		assert.Equal(t, uint64(9), res.WCC.After.FileID)
	})

	t.Run("FailureStillDecodesWccData", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusNotSync)
		xdr.EncodeBool(&reply, true) // wcc_attr before
		xdr.EncodeUint64(&reply, 4096)
		xdr.EncodeUint32(&reply, 100)
		xdr.EncodeUint32(&reply, 0)
		xdr.EncodeUint32(&reply, 100)
		xdr.EncodeUint32(&reply, 0)
		encodePostOpAttr(&reply, false, 0, 0)

		client, _ := newClient(reply.Bytes())
		res, err := client.Commit(fh, 0, 0)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, StatusNotSync, statusErr.Status)
		require.NotNil(t, res)
		require.NotNil(t, res.WCC.Before)
		assert.Equal(t, uint64(4096), res.WCC.Before.Size)
	})
}

// ============================================================================
// Flush Extension Tests
// ============================================================================

func TestFlush(t *testing.T) {
	fh := FileHandle{0xCA, 0xFE}
	desc := DefaultFlushDescriptor()

	okReply := func() []byte {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		xdr.EncodeBool(&reply, false)
		encodePostOpAttr(&reply, false, 0, 0)
		reply.Write(make([]byte, VerifierSize))
		return reply.Bytes()
	}
	statusReply := func(status Status) []byte {
		var reply bytes.Buffer
		encodeStatus(&reply, status)
		xdr.EncodeBool(&reply, false)
		encodePostOpAttr(&reply, false, 0, 0)
		return reply.Bytes()
	}

	t.Run("OKMapsToClean", func(t *testing.T) {
		client, _ := newClient(okReply())
		state, err := client.FlushSync(fh, desc)
		require.NoError(t, err)
		assert.Equal(t, FlushClean, state)
	})

	t.Run("NotSyncMapsToPending", func(t *testing.T) {
		client, _ := newClient(statusReply(StatusNotSync))
		state, err := client.FlushAsync(fh, desc)
		require.NoError(t, err)
		assert.Equal(t, FlushPending, state)
	})

	t.Run("NotEmptyMapsToDirty", func(t *testing.T) {
		client, _ := newClient(statusReply(StatusNotEmpty))
		state, err := client.FlushQuery(fh, desc)
		require.NoError(t, err)
		assert.Equal(t, FlushDirty, state)
	})

	t.Run("UnexpectedStatusSurfacesError", func(t *testing.T) {
		client, _ := newClient(statusReply(StatusAccess))
		_, err := client.FlushSync(fh, desc)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, StatusAccess, statusErr.Status)
	})

	t.Run("VariantsUseTheirSentinelCounts", func(t *testing.T) {
		cases := []struct {
			name string
			call func(*Client) (FlushState, error)
			want uint32
		}{
			{"Sync", func(c *Client) (FlushState, error) { return c.FlushSync(fh, desc) }, desc.SyncCount},
			{"Async", func(c *Client) (FlushState, error) { return c.FlushAsync(fh, desc) }, desc.AsyncCount},
			{"Query", func(c *Client) (FlushState, error) { return c.FlushQuery(fh, desc) }, desc.QueryCount},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				client, fake := newClient(okReply())
				_, err := tc.call(client)
				require.NoError(t, err)

				reader := bytes.NewReader(fake.lastArgs)
				_, err = xdr.DecodeOpaque(reader, "fh")
				require.NoError(t, err)

				offset, err := xdr.DecodeUint64(reader, "offset")
				require.NoError(t, err)
				assert.Equal(t, desc.Offset, offset)

				count, err := xdr.DecodeUint32(reader, "count")
				require.NoError(t, err)
				assert.Equal(t, tc.want, count)
			})
		}
	})
}

// ============================================================================
// READDIRPLUS Tests
// ============================================================================

func TestReadDirPlus(t *testing.T) {
	dirfh := FileHandle{0xD1}

	t.Run("DecodesEntryList", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusOK)
		encodePostOpAttr(&reply, false, 0, 0) // dir_attributes
		reply.Write([]byte{0, 0, 0, 0, 0, 0, 0, 1}) // cookieverf

		// First entry with a handle.
		xdr.EncodeBool(&reply, true)
		xdr.EncodeUint64(&reply, 100)
		xdr.EncodeString(&reply, "testfile")
		xdr.EncodeUint64(&reply, 1)
		encodePostOpAttr(&reply, false, 0, 0)
		xdr.EncodeBool(&reply, true)
		xdr.EncodeOpaque(&reply, []byte{0x11, 0x22})

		// Second entry without a handle.
		xdr.EncodeBool(&reply, true)
		xdr.EncodeUint64(&reply, 101)
		xdr.EncodeString(&reply, "other")
		xdr.EncodeUint64(&reply, 2)
		encodePostOpAttr(&reply, false, 0, 0)
		xdr.EncodeBool(&reply, false)

		xdr.EncodeBool(&reply, false) // no more entries
		xdr.EncodeBool(&reply, true)  // eof

		client, _ := newClient(reply.Bytes())
		res, err := client.ReadDirPlus(dirfh, 0, nil, 4096, 4096)
		require.NoError(t, err)

		require.Len(t, res.Entries, 2)
		assert.Equal(t, "testfile", res.Entries[0].Name)
		assert.Equal(t, FileHandle{0x11, 0x22}, res.Entries[0].Handle)
		assert.Equal(t, "other", res.Entries[1].Name)
		assert.Nil(t, res.Entries[1].Handle)
		assert.Equal(t, uint64(2), res.Entries[1].Cookie)
		assert.True(t, res.EOF)
	})

	t.Run("BadCookieReturnsStatusError", func(t *testing.T) {
		var reply bytes.Buffer
		encodeStatus(&reply, StatusBadCookie)
		encodePostOpAttr(&reply, false, 0, 0)

		client, _ := newClient(reply.Bytes())
		_, err := client.ReadDirPlus(dirfh, 99, nil, 4096, 4096)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, StatusBadCookie, statusErr.Status)
	})
}

// ============================================================================
// Type Tests
// ============================================================================

func TestFileHandle(t *testing.T) {
	t.Run("ValidateRejectsEmptyAndOversized", func(t *testing.T) {
		assert.Error(t, FileHandle{}.Validate())
		assert.Error(t, FileHandle(make([]byte, NFS3FileHandleSize+1)).Validate())
		assert.NoError(t, FileHandle(make([]byte, NFS3FileHandleSize)).Validate())
	})

	t.Run("StringIsHex", func(t *testing.T) {
		assert.Equal(t, "deadbeef", FileHandle{0xDE, 0xAD, 0xBE, 0xEF}.String())
	})
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "NFS3_OK", StatusOK.String())
	assert.Equal(t, "NFS3ERR_NOT_SYNC", StatusNotSync.String())
	assert.Equal(t, "NFS3ERR_NOTEMPTY", StatusNotEmpty.String())
	assert.Equal(t, "NFS3ERR_4242", Status(4242).String())
}
