package image

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	manifestJSONFile = "manifest.json"
	ociIndexFile     = "index.json"
	ociLayoutFile    = "oci-layout"
	ociBlobsDir      = "blobs"
	// repositoriesFile marks the deprecated v1.0 layout.
	repositoriesFile = "repositories"
)

// DetectFormat classifies the extracted image directory at location. The
// deprecated v1.0 repositories layout is recognised and reported with a
// LegacyLayoutError; anything else unrecognised is an UnknownLayoutError.
func DetectFormat(location string) (Format, error) {
	stat, err := os.Stat(location)
	if err != nil {
		return "", errors.Wrapf(err, "failed reading image directory: %s", location)
	}
	if !stat.IsDir() {
		return "", errors.Errorf("not a directory: %s", location)
	}

	if fileExists(filepath.Join(location, manifestJSONFile)) {
		return FormatDocker, nil
	}

	if fileExists(filepath.Join(location, ociIndexFile)) &&
		fileExists(filepath.Join(location, ociLayoutFile)) &&
		dirExists(filepath.Join(location, ociBlobsDir)) {
		return FormatOCI, nil
	}

	if fileExists(filepath.Join(location, repositoriesFile)) {
		return "", &LegacyLayoutError{Location: location}
	}

	return "", &UnknownLayoutError{Location: location}
}

func fileExists(location string) bool {
	stat, err := os.Stat(location)
	return err == nil && !stat.IsDir()
}

func dirExists(location string) bool {
	stat, err := os.Stat(location)
	return err == nil && stat.IsDir()
}
