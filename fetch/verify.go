package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ctessum/cdf"

	"github.com/pithecene-io/isobar/iox"
)

// ErrNotNetCDF indicates a downloaded file is not NetCDF.
var ErrNotNetCDF = errors.New("not a NetCDF file")

var hdf5Magic = []byte("\x89HDF\r\n\x1a\n")

// FileInfo describes a verified file.
type FileInfo struct {
	// Format is "classic", "64bit-offset" or "netcdf4".
	Format string
	// Variables lists variable names. Only read for classic formats.
	Variables []string
}

// Verify checks that path holds NetCDF data. Classic and 64-bit offset
// files are opened to list their variables; NetCDF-4 (HDF5) files are
// checked by signature only.
func Verify(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	magic := make([]byte, len(hdf5Magic))
	n, err := io.ReadFull(f, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotNetCDF, path, err)
	}
	magic = magic[:n]

	switch {
	case bytes.Equal(magic, hdf5Magic):
		return &FileInfo{Format: "netcdf4"}, nil
	case len(magic) >= 4 && bytes.Equal(magic[:3], []byte("CDF")) && (magic[3] == 1 || magic[3] == 2):
		cf, err := cdf.Open(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotNetCDF, path, err)
		}
		format := "classic"
		if magic[3] == 2 {
			format = "64bit-offset"
		}
		return &FileInfo{Format: format, Variables: cf.Header.Variables()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotNetCDF, path)
	}
}
