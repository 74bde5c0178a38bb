package config

import (
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/flushclient"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/flusher"
)

// SessionConfig converts the endpoint section into a flushclient config.
func (c *Config) SessionConfig() (flushclient.Config, error) {
	desc, err := c.Flush.FlushDescriptor()
	if err != nil {
		return flushclient.Config{}, err
	}
	return flushclient.Config{
		Server:      c.Server.Address,
		Export:      c.Server.Export,
		CallTimeout: c.Server.CallTimeout,
		Flush:       desc,
	}, nil
}

// FlusherConfig converts the workflow section into a flusher config.
func (c *Config) FlusherConfig() flusher.Config {
	return flusher.Config{
		Threads:     c.Flush.Threads,
		FileTimeout: c.Flush.FileTimeout,
		Sync:        c.Flush.Sync,
		AsyncDepth:  c.Flush.AsyncDepth,
		Recheck:     c.Flush.Recheck,
	}
}
