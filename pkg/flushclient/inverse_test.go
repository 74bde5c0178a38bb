package flushclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/mount"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/xdr"
)

// scriptedMount answers EXPORT and MNT for a static export table and
// records the dirs it is asked to unmount.
type scriptedMount struct {
	exports map[string]string // export dir -> hex root handle
	umnts   []string
}

func (s *scriptedMount) Call(proc uint32, args []byte, _ time.Duration) ([]byte, error) {
	switch proc {
	case mount.ProcExport:
		var reply bytes.Buffer
		for dir := range s.exports {
			xdr.EncodeBool(&reply, true)
			xdr.EncodeString(&reply, dir)
			xdr.EncodeBool(&reply, false) // no groups
		}
		xdr.EncodeBool(&reply, false)
		return reply.Bytes(), nil

	case mount.ProcMnt:
		dir, err := xdr.DecodeString(bytes.NewReader(args), "dirpath")
		if err != nil {
			return nil, err
		}
		rootHex, ok := s.exports[dir]
		if !ok {
			var reply bytes.Buffer
			xdr.EncodeUint32(&reply, 13) // EACCES
			return reply.Bytes(), nil
		}
		root, err := ParseHandle(rootHex)
		if err != nil {
			return nil, err
		}
		var reply bytes.Buffer
		xdr.EncodeUint32(&reply, mount.MountStatOK)
		xdr.EncodeOpaque(&reply, root)
		xdr.EncodeUint32(&reply, 0) // no auth flavors
		return reply.Bytes(), nil

	case mount.ProcUmnt:
		dir, err := xdr.DecodeString(bytes.NewReader(args), "dirpath")
		if err != nil {
			return nil, err
		}
		s.umnts = append(s.umnts, dir)
		return nil, nil

	case mount.ProcUmntAll:
		return nil, nil
	}
	return nil, nil
}

func (s *scriptedMount) Close() error { return nil }

func TestPathFromHandle(t *testing.T) {
	newSession := func(t *testing.T) (*Session, *scriptedMount) {
		script := &scriptedMount{
			exports: map[string]string{"/1_1_1_0": "aa"},
		}
		session := newTestSession(t, testNamespace(), "aa")
		session.mount = mount.NewClient(script, time.Second)
		return session, script
	}

	t.Run("WalksUpToExportRoot", func(t *testing.T) {
		session, _ := newSession(t)

		fh, err := ParseHandle("cc")
		require.NoError(t, err)

		path, err := session.PathFromHandle(fh)
		require.NoError(t, err)
		assert.Equal(t, "/1_1_1_0/testdir/testfile", path)
	})

	t.Run("ExportRootResolvesToItself", func(t *testing.T) {
		session, _ := newSession(t)

		fh, err := ParseHandle("aa")
		require.NoError(t, err)

		path, err := session.PathFromHandle(fh)
		require.NoError(t, err)
		assert.Equal(t, "/1_1_1_0", path)
	})

	t.Run("UnknownHandleFails", func(t *testing.T) {
		session, _ := newSession(t)

		fh, err := ParseHandle("ff")
		require.NoError(t, err)

		_, err = session.PathFromHandle(fh)
		assert.Error(t, err)
	})

	t.Run("IntermediateDirectory", func(t *testing.T) {
		session, _ := newSession(t)

		fh, err := ParseHandle("bb")
		require.NoError(t, err)

		path, err := session.PathFromHandle(fh)
		require.NoError(t, err)
		assert.Equal(t, "/1_1_1_0/testdir", path)
	})

	t.Run("DetachesProbeMounts", func(t *testing.T) {
		session, script := newSession(t)

		fh, err := ParseHandle("cc")
		require.NoError(t, err)

		_, err = session.PathFromHandle(fh)
		require.NoError(t, err)
		assert.Equal(t, []string{"/1_1_1_0"}, script.umnts)
	})
}
