package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
)

// FlushDescriptor decodes the descriptor section into the wire descriptor.
// YAML and environment sources deliver untyped scalars, so decoding is weak:
// integers and numeric strings convert to the target widths.
func (c *FlushConfig) FlushDescriptor() (nfs.FlushDescriptor, error) {
	var decoded DescriptorConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &decoded,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nfs.FlushDescriptor{}, err
	}
	if err := decoder.Decode(c.Descriptor); err != nil {
		return nfs.FlushDescriptor{}, fmt.Errorf("flush.descriptor: %w", err)
	}

	return nfs.FlushDescriptor{
		Offset:     decoded.Offset,
		SyncCount:  decoded.SyncCount,
		AsyncCount: decoded.AsyncCount,
		QueryCount: decoded.QueryCount,
	}, nil
}
