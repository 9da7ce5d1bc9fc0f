package image

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/container-tools/dissect/pkg/archive"
	"github.com/hashicorp/go-hclog"
	godigest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// imagesFromOCILayout loads images from an OCI image layout directory:
// index.json and oci-layout at the top, content-addressed blobs below.
func imagesFromOCILayout(location string, verify bool, logger hclog.Logger) ([]*Image, error) {
	indexLocation := filepath.Join(location, ociIndexFile)
	index := &ocispec.Index{}
	if err := loadJSONInto(indexLocation, index); err != nil {
		return nil, err
	}
	if index.SchemaVersion != 2 {
		return nil, &UnsupportedSchemaVersionError{Location: indexLocation, Version: index.SchemaVersion}
	}

	images := []*Image{}
	for _, descriptor := range index.Manifests {
		if descriptor.MediaType != ocispec.MediaTypeImageManifest {
			return nil, &UnsupportedMediaTypeError{MediaType: descriptor.MediaType}
		}
		img, err := imageFromOCIManifest(location, descriptor, verify, logger)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func imageFromOCIManifest(location string, descriptor ocispec.Descriptor, verify bool, logger hclog.Logger) (*Image, error) {
	manifestLocation, err := resolveBlob(location, descriptor.Digest, verify, logger)
	if err != nil {
		return nil, err
	}
	manifest := &ocispec.Manifest{}
	if err := loadJSONInto(manifestLocation, manifest); err != nil {
		return nil, err
	}

	configLocation, err := resolveBlob(location, manifest.Config.Digest, verify, logger)
	if err != nil {
		return nil, err
	}

	imageID := manifest.Config.Digest.Encoded()
	configDigest := manifest.Config.Digest.String()

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

	if len(manifest.Layers) != len(doc.Rootfs.DiffIDs) {
		return nil, errors.Errorf(
			"manifest layers and config diff_ids differ in length: %d vs %d in: %s",
			len(manifest.Layers), len(doc.Rootfs.DiffIDs), configLocation)
	}

	layers := make([]*Layer, 0, len(manifest.Layers))
	for idx, layerDescriptor := range manifest.Layers {
		diffID := AsBareID(doc.Rootfs.DiffIDs[idx])
		layer, err := buildOCILayer(location, layerDescriptor, diffID, verify, logger)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}

	tags := []string{}
	if refName := descriptor.Annotations[ocispec.AnnotationRefName]; refName != "" {
		tags = append(tags, refName)
	}

	img := &Image{
		ImageFormat:       FormatOCI,
		ImageID:           imageID,
		ConfigDigest:      configDigest,
		Tags:              tags,
		Layers:            layers,
		ExtractedLocation: location,
	}
	img.applyConfig(doc)
	alignHistory(img.Layers, img.History)
	return img, nil
}

// buildOCILayer constructs a Layer for an OCI layer blob. The layer identity
// is the diff_id; the archive location is whatever blob the manifest
// references, which may be compressed. Digest verification against the
// diff_id is only possible for uncompressed tar blobs; compressed blobs are
// verified against their descriptor digest instead.
func buildOCILayer(location string, descriptor ocispec.Descriptor, diffID string, verify bool, logger hclog.Logger) (*Layer, error) {
	blobLocation := blobPath(location, descriptor.Digest)
	onDisk, err := archive.SHA256Digest(blobLocation)
	if err != nil {
		return nil, err
	}
	if descriptor.MediaType == ocispec.MediaTypeImageLayer {
		if onDisk != diffID {
			if verify {
				return nil, &LayerDigestMismatchError{Location: blobLocation, Expected: diffID, Actual: onDisk}
			}
			logger.Warn("layer digest does not match its diff_id",
				"layer", blobLocation, "diff-id", diffID, "digest", onDisk)
		}
	} else if onDisk != descriptor.Digest.Encoded() {
		if verify {
			return nil, &BlobDigestMismatchError{Location: blobLocation, Expected: descriptor.Digest.Encoded(), Actual: onDisk}
		}
		logger.Warn("layer blob digest does not match its descriptor",
			"layer", blobLocation, "descriptor-digest", descriptor.Digest.String(), "digest", onDisk)
	}

	layer, err := NewLayer(diffID, blobLocation)
	if err != nil {
		return nil, err
	}
	layer.SizeBytes = descriptor.Size
	if layer.SizeBytes == 0 {
		if stat, err := os.Stat(blobLocation); err == nil {
			layer.SizeBytes = stat.Size()
		}
	}
	return layer, nil
}

// resolveBlob returns the on-disk location of a blob and, under verification,
// re-hashes it against its address.
func resolveBlob(location string, dgst godigest.Digest, verify bool, logger hclog.Logger) (string, error) {
	blobLocation := blobPath(location, dgst)
	if _, err := os.Stat(blobLocation); err != nil {
		return "", errors.Errorf("missing blob: %s", blobLocation)
	}
	if verify {
		onDisk, err := archive.SHA256Digest(blobLocation)
		if err != nil {
			return "", err
		}
		if onDisk != dgst.Encoded() {
			return "", &BlobDigestMismatchError{Location: blobLocation, Expected: dgst.Encoded(), Actual: onDisk}
		}
	}
	return blobLocation, nil
}

func blobPath(location string, dgst godigest.Digest) string {
	return filepath.Join(location, ociBlobsDir, dgst.Algorithm().String(), dgst.Encoded())
}

func loadJSONInto(location string, target interface{}) error {
	f, err := os.Open(location)
	if err != nil {
		return errors.Wrapf(err, "failed opening JSON file: %s", location)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(target); err != nil {
		return errors.Wrapf(err, "failed parsing JSON file: %s", location)
	}
	return nil
}
