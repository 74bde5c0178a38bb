package mount

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

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

func newTestClient(reply []byte) (*Client, *fakeCaller) {
	fake := &fakeCaller{reply: reply}
	return NewClient(fake, time.Second), fake
}

func TestMnt(t *testing.T) {
	t.Run("ReturnsRootHandle", func(t *testing.T) {
		handle := []byte{0xAA, 0xBB, 0xCC, 0xDD}

		var reply bytes.Buffer
		xdr.EncodeUint32(&reply, MountStatOK)
		xdr.EncodeOpaque(&reply, handle)
		xdr.EncodeUint32(&reply, 1) // one auth flavor
		xdr.EncodeUint32(&reply, 1) // AUTH_UNIX

		client, fake := newTestClient(reply.Bytes())
		fh, err := client.Mnt("/1_1_1_0")
		require.NoError(t, err)

		assert.Equal(t, uint32(ProcMnt), fake.lastProc)
		assert.Equal(t, nfs.FileHandle(handle), fh)

		// Args are the dirpath as an XDR string.
		name, err := xdr.DecodeString(bytes.NewReader(fake.lastArgs), "dirpath")
		require.NoError(t, err)
		assert.Equal(t, "/1_1_1_0", name)
	})

	t.Run("ErrnoStatusReturnsStatusError", func(t *testing.T) {
		var reply bytes.Buffer
		xdr.EncodeUint32(&reply, 13) // EACCES

		client, _ := newTestClient(reply.Bytes())
		_, err := client.Mnt("/forbidden")

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, uint32(13), statusErr.Stat)
	})

	t.Run("EmptyHandleRejected", func(t *testing.T) {
		var reply bytes.Buffer
		xdr.EncodeUint32(&reply, MountStatOK)
		xdr.EncodeOpaque(&reply, nil)
		xdr.EncodeUint32(&reply, 0)

		client, _ := newTestClient(reply.Bytes())
		_, err := client.Mnt("/empty")

		var decodeErr *xdr.DecodeError
		require.True(t, errors.As(err, &decodeErr))
	})
}

func TestExport(t *testing.T) {
	t.Run("DecodesLinkedList", func(t *testing.T) {
		var reply bytes.Buffer

		xdr.EncodeBool(&reply, true)
		xdr.EncodeString(&reply, "/1_1_1_0")
		xdr.EncodeBool(&reply, true)
		xdr.EncodeString(&reply, "10.0.0.0/8")
		xdr.EncodeBool(&reply, false)

		xdr.EncodeBool(&reply, true)
		xdr.EncodeString(&reply, "/scratch")
		xdr.EncodeBool(&reply, false)

		xdr.EncodeBool(&reply, false)

		client, fake := newTestClient(reply.Bytes())
		entries, err := client.Export()
		require.NoError(t, err)

		assert.Equal(t, uint32(ProcExport), fake.lastProc)
		require.Len(t, entries, 2)
		assert.Equal(t, "/1_1_1_0", entries[0].Dir)
		assert.Equal(t, []string{"10.0.0.0/8"}, entries[0].Groups)
		assert.Equal(t, "/scratch", entries[1].Dir)
		assert.Empty(t, entries[1].Groups)
	})

	t.Run("EmptyListAllowed", func(t *testing.T) {
		var reply bytes.Buffer
		xdr.EncodeBool(&reply, false)

		client, _ := newTestClient(reply.Bytes())
		entries, err := client.Export()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestUmnt(t *testing.T) {
	client, fake := newTestClient(nil)
	require.NoError(t, client.Umnt("/scratch"))
	assert.Equal(t, uint32(ProcUmnt), fake.lastProc)

	name, err := xdr.DecodeString(bytes.NewReader(fake.lastArgs), "dirpath")
	require.NoError(t, err)
	assert.Equal(t, "/scratch", name)
}

func TestUmntAll(t *testing.T) {
	client, fake := newTestClient(nil)
	require.NoError(t, client.UmntAll())
	assert.Equal(t, uint32(ProcUmntAll), fake.lastProc)
	assert.Empty(t, fake.lastArgs)
}
