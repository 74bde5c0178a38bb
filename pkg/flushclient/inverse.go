package flushclient

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
)

// ParseHandle decodes a hex-encoded file handle, as printed by
// FileHandle.String or captured from a packet trace.
func ParseHandle(s string) (nfs.FileHandle, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	fh := nfs.FileHandle(data)
	if err := fh.Validate(); err != nil {
		return nil, err
	}
	return fh, nil
}

// maxInverseDepth bounds the upward walk of PathFromHandle. Deeper trees
// than this indicate a cycle or a handle from another namespace.
const maxInverseDepth = 256

// readdirPageSize is the dircount/maxcount hint for READDIRPLUS pages
// during inverse resolution.
const readdirPageSize = 64 * 1024

// PathFromHandle recovers a path for a file handle, for diagnostics only:
// it walks upward with LOOKUP "..", names each level by scanning the parent
// with READDIRPLUS, and stops when the current handle matches one of the
// server's advertised export roots.
//
// The result is one valid name for the object (hard links make it
// non-unique). The walk costs a directory scan per level; never use it on a
// hot path.
func (s *Session) PathFromHandle(fh nfs.FileHandle) (string, error) {
	exportRoots, err := s.exportRootHandles()
	if err != nil {
		return "", err
	}

	current := fh
	var components []string

	for depth := 0; depth < maxInverseDepth; depth++ {
		if dir, ok := exportRoots[current.String()]; ok {
			return path.Join(append([]string{dir}, components...)...), nil
		}

		parentRes, err := s.Lookup(current, "..")
		if err != nil {
			return "", fmt.Errorf("walk up from %s: %w", current, err)
		}
		parent := parentRes.Handle

		if bytes.Equal(parent, current) {
			// Filesystem root that is not an advertised export: give a
			// rooted relative path rather than failing.
			return path.Join(append([]string{"/"}, components...)...), nil
		}

		name, err := s.nameInDirectory(parent, current)
		if err != nil {
			return "", err
		}

		components = append([]string{name}, components...)
		current = parent
	}

	return "", fmt.Errorf("handle %s: exceeded %d levels walking to an export root", fh, maxInverseDepth)
}

// exportRootHandles mounts each advertised export and maps its root handle
// (hex form) to the export path. Each probe mount is detached again right
// away; only the session's own export stays on the server's mount list.
func (s *Session) exportRootHandles() (map[string]string, error) {
	exports, err := s.Exports()
	if err != nil {
		return nil, err
	}

	roots := make(map[string]string, len(exports)+1)
	roots[s.root.String()] = s.cfg.Export

	for _, entry := range exports {
		fh, err := s.mount.Mnt(entry.Dir)
		if err != nil {
			// Some exports refuse this client; they cannot be the walk's
			// destination then, so skip rather than fail.
			continue
		}
		roots[fh.String()] = entry.Dir

		if err := s.mount.Umnt(entry.Dir); err != nil {
			logger.Debug("umnt %s: %v", entry.Dir, err)
		}
	}
	return roots, nil
}

// nameInDirectory scans dirfh with READDIRPLUS for the entry whose handle
// (or, when the server omits handles, whose fileid) matches child.
func (s *Session) nameInDirectory(dirfh, child nfs.FileHandle) (string, error) {
	var childID uint64
	haveChildID := false

	var cookie uint64
	var cookieVerf []byte

	for {
		var page *nfs.ReadDirPlusResult
		err := s.observe("readdirplus", func() error {
			var err error
			page, err = s.nfs.ReadDirPlus(dirfh, cookie, cookieVerf, readdirPageSize, readdirPageSize)
			return err
		})
		if err != nil {
			return "", err
		}

		for _, entry := range page.Entries {
			if entry.Name == "." || entry.Name == ".." {
				continue
			}
			if entry.Handle != nil {
				if bytes.Equal(entry.Handle, child) {
					return entry.Name, nil
				}
				continue
			}

			if !haveChildID {
				attr, err := s.GetAttr(child)
				if err != nil {
					return "", err
				}
				childID = attr.FileID
				haveChildID = true
			}
			if entry.FileID == childID {
				return entry.Name, nil
			}
		}

		if page.EOF {
			return "", fmt.Errorf("handle %s not found in directory %s", child, dirfh)
		}
		if len(page.Entries) == 0 {
			return "", fmt.Errorf("directory %s: empty READDIRPLUS page before EOF", dirfh)
		}
		cookie = page.Entries[len(page.Entries)-1].Cookie
		cookieVerf = page.CookieVerf
	}
}
