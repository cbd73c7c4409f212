package inventory

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"path"

	"github.com/packserv/packserv"
)

// manifestFromTar streams archive entries until the first regular
// file named package.xml, at any depth, and parses it.
func manifestFromTar(ctx context.Context, r io.Reader) (*packserv.Manifest, error) {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil, errors.New("package.xml missing")
		case err != nil:
			return nil, err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		if path.Base(h.Name) != "package.xml" {
			continue
		}
		return packserv.ParseManifest(ctx, tr)
	}
}
