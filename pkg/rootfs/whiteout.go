package rootfs

import (
	"os"
	"path/filepath"
	"strings"
)

// Whiteout file name conventions inherited from AUFS/overlayfs, as specified
// by https://github.com/opencontainers/image-spec/blob/master/layer.md#whiteouts
const (
	// WhiteoutExplicitPrefix marks a single entry of the same directory as deleted.
	WhiteoutExplicitPrefix = ".wh."
	// WhiteoutOpaqueName erases the containing directory from lower layers.
	WhiteoutOpaqueName = ".wh..wh..opq"
)

// Whiteout pairs a whiteout marker file with the path it whites out, relative
// to the layer root.
type Whiteout struct {
	// MarkerLocation is the absolute location of the marker file.
	MarkerLocation string
	// WhiteablePath is the whited-out path, relative to the layer root.
	WhiteablePath string
}

// IsWhiteoutMarker returns true when the path's file name is a whiteout marker.
func IsWhiteoutMarker(path string) bool {
	return strings.HasPrefix(filepath.Base(strings.TrimRight(path, "/")), WhiteoutExplicitPrefix)
}

// WhiteablePath returns the path whited out by the marker at path, or false
// when the path is not a whiteout marker. For an opaque marker this is the
// marker's parent directory; for an explicit marker it is the sibling entry
// named after the marker suffix.
func WhiteablePath(path string) (string, bool) {
	fileName := filepath.Base(path)
	parentDir := filepath.Dir(path)

	if fileName == WhiteoutOpaqueName {
		return parentDir, true
	}
	if strings.HasPrefix(fileName, WhiteoutExplicitPrefix) {
		return filepath.Join(parentDir, strings.TrimPrefix(fileName, WhiteoutExplicitPrefix)), true
	}
	return "", false
}

// FindWhiteouts returns the whiteouts found under the rootLocation directory.
func FindWhiteouts(rootLocation string) ([]Whiteout, error) {
	whiteouts := []Whiteout{}
	err := filepath.Walk(rootLocation, func(location string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		whiteable, ok := WhiteablePath(location)
		if !ok {
			return nil
		}
		relative, relErr := filepath.Rel(rootLocation, whiteable)
		if relErr != nil {
			return relErr
		}
		whiteouts = append(whiteouts, Whiteout{
			MarkerLocation: location,
			WhiteablePath:  relative,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return whiteouts, nil
}
