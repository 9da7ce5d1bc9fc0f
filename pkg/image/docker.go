package image

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/container-tools/dissect/pkg/archive"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// manifestEntry is one element of a manifest.json array. It is decoded from a
// key-lowercased mapping, making every lookup case-insensitive.
type manifestEntry struct {
	Config   string   `mapstructure:"config"`
	Layers   []string `mapstructure:"layers"`
	RepoTags []string `mapstructure:"repotags"`
	Parent   string   `mapstructure:"parent"`
}

// GetImagesFromTarball extracts a "docker save" or OCI image tarball at
// archiveLocation into extractTo and loads the images found inside. The
// extraction is skipped when extractTo already holds a recognisable image
// layout, unless force is set.
func GetImagesFromTarball(archiveLocation, extractTo string, verify, force bool, logger hclog.Logger) ([]*Image, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	// reuse a previous extraction only when the target already holds a
	// recognisable layout
	_, detectErr := DetectFormat(extractTo)
	if force || detectErr != nil {
		logger.Debug("extracting image tarball", "archive", archiveLocation, "target", extractTo)
		if err := archive.ExtractTarKeepingSymlinks(archiveLocation, extractTo, logger); err != nil {
			return nil, err
		}
	}
	images, err := GetImagesFromDir(extractTo, verify, logger)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		img.ArchiveLocation = archiveLocation
	}
	return images, nil
}

// GetImagesFromDir loads every image found in the extracted image directory
// at location, detecting the docker-save or OCI layout.
func GetImagesFromDir(location string, verify bool, logger hclog.Logger) ([]*Image, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	format, err := DetectFormat(location)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatDocker:
		return imagesFromDockerLayout(location, verify, logger)
	case FormatOCI:
		return imagesFromOCILayout(location, verify, logger)
	}
	return nil, &UnknownLayoutError{Location: location}
}

// imagesFromDockerLayout loads images from a docker-save v1.1/v1.2 directory:
// a top level manifest.json array pointing at per-image config files and
// ordered layer tarballs.
func imagesFromDockerLayout(location string, verify bool, logger hclog.Logger) ([]*Image, error) {
	manifestLocation := filepath.Join(location, manifestJSONFile)
	manifest, err := archive.LoadJSONArray(manifestLocation)
	if err != nil {
		return nil, err
	}

	images := []*Image{}
	for _, rawEntry := range manifest {
		mapping, ok := rawEntry.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("expected a mapping for each manifest entry in: %s", manifestLocation)
		}
		entry := &manifestEntry{}
		if err := mapstructure.Decode(archive.LowerKeys(mapping), entry); err != nil {
			return nil, errors.Wrapf(err, "failed decoding manifest entry in: %s", manifestLocation)
		}
		img, err := imageFromManifestEntry(location, entry, verify, logger)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func imageFromManifestEntry(location string, entry *manifestEntry, verify bool, logger hclog.Logger) (*Image, error) {
	if entry.Config == "" {
		return nil, errors.Errorf("invalid manifest entry, missing Config in: %s", location)
	}
	configLocation := filepath.Join(location, filepath.FromSlash(entry.Config))
	if _, err := os.Stat(configLocation); err != nil {
		return nil, errors.Errorf("invalid configuration, missing Config file: %s", configLocation)
	}

	imageID := strings.TrimSuffix(filepath.Base(configLocation), filepath.Ext(configLocation))
	configSha256, err := archive.SHA256Digest(configLocation)
	if err != nil {
		return nil, err
	}
	configDigest := AsPrefixedDigest(configSha256)
	if imageID != configSha256 {
		if verify {
			return nil, &ConfigDigestMismatchError{
				Location: configLocation,
				Expected: imageID,
				Actual:   configSha256,
			}
		}
		logger.Warn("image config digest is not consistent",
			"config", configLocation, "image-id", imageID, "digest", configSha256)
	}

	rawConfig, err := archive.LoadJSONMap(configLocation)
	if err != nil {
		return nil, err
	}
	doc, err := decodeImageConfig(configLocation, rawConfig)
	if err != nil {
		return nil, err
	}
	if doc.Rootfs.Type != "layers" {
		return nil, &UnsupportedRootfsTypeError{Location: configLocation, Type: doc.Rootfs.Type}
	}

	if len(entry.Layers) != len(doc.Rootfs.DiffIDs) {
		return nil, errors.Errorf(
			"manifest layers and config diff_ids differ in length: %d vs %d in: %s",
			len(entry.Layers), len(doc.Rootfs.DiffIDs), configLocation)
	}

	layers := make([]*Layer, 0, len(entry.Layers))
	for idx, layerPath := range entry.Layers {
		diffID := AsBareID(doc.Rootfs.DiffIDs[idx])
		layerLocation := filepath.Join(location, filepath.FromSlash(layerPath))
		layer, err := buildLayer(layerLocation, diffID, verify, logger)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}

	img := &Image{
		ImageFormat:       FormatDocker,
		ImageID:           imageID,
		ConfigDigest:      configDigest,
		ParentDigest:      entry.Parent,
		Tags:              entry.RepoTags,
		Layers:            layers,
		ExtractedLocation: location,
	}
	img.applyConfig(doc)
	alignHistory(img.Layers, img.History)
	return img, nil
}

// buildLayer digests the on-disk layer tarball, compares it against the
// expected diff_id and constructs the Layer.
func buildLayer(layerLocation, diffID string, verify bool, logger hclog.Logger) (*Layer, error) {
	onDisk, err := archive.SHA256Digest(layerLocation)
	if err != nil {
		return nil, err
	}
	if onDisk != diffID {
		if verify {
			return nil, &LayerDigestMismatchError{
				Location: layerLocation,
				Expected: diffID,
				Actual:   onDisk,
			}
		}
		logger.Warn("layer digest does not match its diff_id",
			"layer", layerLocation, "diff-id", diffID, "digest", onDisk)
	}
	layer, err := NewLayer(diffID, layerLocation)
	if err != nil {
		return nil, err
	}
	if stat, err := os.Stat(layerLocation); err == nil {
		layer.SizeBytes = stat.Size()
	}
	return layer, nil
}
