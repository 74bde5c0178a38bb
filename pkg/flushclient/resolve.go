package flushclient

import (
	"errors"
	"strings"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
)

// Resolve walks path from the export root, one LOOKUP per component, and
// returns the file handle of the final component.
//
// Paths are interpreted relative to the export root whether or not they
// start with "/". "/" and "" resolve to the root itself without any RPC.
// Resolution fails fast: the first missing component returns
// *nfs.NotFoundError and no further lookups are issued.
func (s *Session) Resolve(path string) (nfs.FileHandle, error) {
	fh := s.root

	for _, name := range splitPath(path) {
		res, err := s.Lookup(fh, name)
		if err != nil {
			var statusErr *nfs.StatusError
			if errors.As(err, &statusErr) && statusErr.Status == nfs.StatusNoEnt {
				return nil, &nfs.NotFoundError{Path: path, Missing: name}
			}
			return nil, err
		}
		fh = res.Handle
	}

	return fh, nil
}

// splitPath breaks a slash-separated path into lookup components. Empty
// components (leading, trailing, or doubled slashes) and "." are dropped;
// ".." is kept and resolved by the server.
func splitPath(path string) []string {
	var components []string
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		components = append(components, part)
	}
	return components
}
