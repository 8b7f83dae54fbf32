package imagery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"transientbot/internal/textutil"
)

// TSMapDir reads significance maps named "<token>_TSmap.fits" from a local
// directory, where token is the file-name form of the transient identifier.
type TSMapDir struct {
	Dir string
}

func (d TSMapDir) Survey() string { return "TS map" }

// Path returns where the map for id is expected.
func (d TSMapDir) Path(id string) string {
	return filepath.Join(d.Dir, textutil.FileToken(id)+"_TSmap.fits")
}

func (d TSMapDir) Fetch(ctx context.Context, target Target) (*Cutout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Dir == "" {
		return nil, fmt.Errorf("ts map: %w", ErrNoImagery)
	}
	path := d.Path(target.ID)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("ts map: %w", ErrNoImagery)
		}
		return nil, fmt.Errorf("open ts map: %w", err)
	}
	defer file.Close()

	cutout, err := DecodeFITS(file)
	if err != nil {
		return nil, fmt.Errorf("ts map %s: %w", path, err)
	}
	cutout.Survey = d.Survey()
	return cutout, nil
}
