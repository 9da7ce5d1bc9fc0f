package rootfs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/container-tools/dissect/pkg/archive"
	"github.com/container-tools/dissect/pkg/image"
	"github.com/container-tools/dissect/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// RebuildRootfs extracts and merges, or "squashes", all layers of the image
// into a single rootfs rooted at targetDir. Layers are replayed in sequence
// from the bottom layer to the top layer and the unionfs/overlayfs whiteout
// procedure is applied at each step, as per the OCI layer specification.
//
// For every layer:
//  1. the layer tarball is extracted to a fresh temporary directory,
//  2. whiteouts are collected from the extracted layer,
//  3. the whited-out files and directories are removed from targetDir and the
//     marker files removed from the extracted layer, so that whiteouts of a
//     layer never affect the content of the same layer,
//  4. the extracted layer is copied over targetDir, overwriting collisions.
//
// Returns the list of paths deleted through whiteout processing. A whiteout
// naming a path which never existed in a lower layer is recorded, not an
// error.
func RebuildRootfs(img *image.Image, targetDir string, logger hclog.Logger) ([]string, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	stat, err := os.Stat(targetDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading target directory: %s", targetDir)
	}
	if !stat.IsDir() {
		return nil, errors.Errorf("not a directory: %s", targetDir)
	}

	deletions := []string{}

	for layerNum, layer := range img.Layers {
		opLogger := logger.With("layer-num", layerNum, "layer-id", layer.LayerID)
		opLogger.Debug("extracting layer", "archive", layer.ArchiveLocation)

		// temporary directories live under the OS temp root, never inside
		// the target rootfs
		extractedLocation, err := utils.TempDir("dissect-layer")
		if err != nil {
			return deletions, errors.Wrap(err, "failed creating layer extraction directory")
		}

		layerDeletions, err := applyLayer(layer, extractedLocation, targetDir, opLogger)
		os.RemoveAll(extractedLocation)
		if err != nil {
			return deletions, err
		}
		deletions = append(deletions, layerDeletions...)
	}

	return deletions, nil
}

func applyLayer(layer *image.Layer, extractedLocation, targetDir string, logger hclog.Logger) ([]string, error) {
	deletions := []string{}

	events, err := archive.ExtractTar(layer.ArchiveLocation, extractedLocation, true, logger)
	if err != nil {
		return deletions, errors.Wrapf(err, "failed extracting layer: %s", layer.LayerID)
	}
	for _, event := range events {
		logger.Debug("layer extraction event",
			"type", event.Type, "source", event.Source, "message", event.Message)
	}

	whiteouts, err := FindWhiteouts(extractedLocation)
	if err != nil {
		return deletions, errors.Wrapf(err, "failed finding whiteouts in layer: %s", layer.LayerID)
	}

	for _, whiteout := range whiteouts {
		whiteableLocation := filepath.Join(targetDir, whiteout.WhiteablePath)
		logger.Debug("applying whiteout",
			"marker", whiteout.MarkerLocation, "whiteable", whiteableLocation)
		if err := os.RemoveAll(whiteableLocation); err != nil {
			return deletions, errors.Wrapf(err, "failed deleting whited-out path: %s", whiteableLocation)
		}
		// remove the marker so it is not copied into the rootfs
		if err := os.RemoveAll(whiteout.MarkerLocation); err != nil {
			return deletions, errors.Wrapf(err, "failed deleting whiteout marker: %s", whiteout.MarkerLocation)
		}
		deletions = append(deletions, whiteableLocation)
	}

	if err := copyTree(extractedLocation, targetDir); err != nil {
		return deletions, errors.Wrapf(err, "failed overlaying layer: %s", layer.LayerID)
	}
	return deletions, nil
}

// copyTree recursively copies the contents of source over target, overwriting
// existing files on collision. Directory permissions come from source.
func copyTree(source, target string) error {
	return filepath.Walk(source, func(location string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(source, location)
		if err != nil {
			return err
		}
		destination := filepath.Join(target, relative)
		if info.IsDir() {
			if err := os.MkdirAll(destination, info.Mode().Perm()); err != nil {
				return err
			}
			return os.Chmod(destination, info.Mode().Perm())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err := os.Readlink(location)
			if err != nil {
				return err
			}
			os.Remove(destination)
			return os.Symlink(linkTarget, destination)
		}
		return copyFile(location, destination, info.Mode().Perm())
	})
}

func copyFile(source, destination string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	// overwrite on collision, whatever the previous type was
	if stat, err := os.Lstat(destination); err == nil {
		if stat.IsDir() {
			os.RemoveAll(destination)
		} else {
			os.Remove(destination)
		}
	}
	out, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
