package nfs

import "fmt"

// StatusError indicates the server executed a procedure and returned a
// non-OK nfsstat3.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nfs %s: %s", e.Op, e.Status)
}

// NotFoundError indicates a path component did not exist during resolution.
// Path is the full path being resolved; Missing is the component LOOKUP
// reported NFS3ERR_NOENT for.
type NotFoundError struct {
	Path    string
	Missing string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path %q: component %q not found", e.Path, e.Missing)
}
