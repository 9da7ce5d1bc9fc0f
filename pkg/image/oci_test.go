package image

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	godigest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
)

func writeBlob(t *testing.T, layoutDir string, content []byte) godigest.Digest {
	dgst := godigest.FromBytes(content)
	blobDir := filepath.Join(layoutDir, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		t.Fatal("expected blob dir to be created, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(blobDir, dgst.Encoded()), content, 0644); err != nil {
		t.Fatal("expected blob to be written, got error", err)
	}
	return dgst
}

// ociLayoutFixture builds an OCI image layout in layoutDir from the given
// layer tarballs and returns the config digest.
func ociLayoutFixture(t *testing.T, layoutDir string, layerTars [][]byte, history []*HistoryEntry, refName string) godigest.Digest {
	diffIDs := []string{}
	layerDescriptors := []ocispec.Descriptor{}
	for _, layerTar := range layerTars {
		dgst := writeBlob(t, layoutDir, layerTar)
		diffIDs = append(diffIDs, dgst.String())
		layerDescriptors = append(layerDescriptors, ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageLayer,
			Digest:    dgst,
			Size:      int64(len(layerTar)),
		})
	}

	config := map[string]interface{}{
		"architecture": "arm64",
		"os":           "linux",
		"variant":      "v8",
		"created":      "2021-03-02T20:05:00Z",
		"history":      history,
		"rootfs": map[string]interface{}{
			"type":     "layers",
			"diff_ids": diffIDs,
		},
	}
	configBytes, err := json.Marshal(config)
	if err != nil {
		t.Fatal("expected config to serialize, got error", err)
	}
	configDigest := writeBlob(t, layoutDir, configBytes)

	manifest := ocispec.Manifest{
		Config: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageConfig,
			Digest:    configDigest,
			Size:      int64(len(configBytes)),
		},
		Layers: layerDescriptors,
	}
	manifest.SchemaVersion = 2
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal("expected manifest to serialize, got error", err)
	}
	manifestDigest := writeBlob(t, layoutDir, manifestBytes)

	index := ocispec.Index{
		Manifests: []ocispec.Descriptor{
			{
				MediaType:   ocispec.MediaTypeImageManifest,
				Digest:      manifestDigest,
				Size:        int64(len(manifestBytes)),
				Annotations: map[string]string{ocispec.AnnotationRefName: refName},
			},
		},
	}
	index.SchemaVersion = 2
	indexBytes, err := json.Marshal(index)
	if err != nil {
		t.Fatal("expected index to serialize, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(layoutDir, "index.json"), indexBytes, 0644); err != nil {
		t.Fatal("expected index.json to be written, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(layoutDir, "oci-layout"), []byte(`{"imageLayoutVersion": "1.0.0"}`), 0644); err != nil {
		t.Fatal("expected oci-layout to be written, got error", err)
	}

	return configDigest
}

func TestGetImagesFromDirOCI(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layerTar := makeTarBytes(t, []fixtureTarEntry{fixtureFile("hello", "hello oci\n")})
	configDigest := ociLayoutFixture(t, tempDir, [][]byte{layerTar}, singleLayerHistory("/bin/sh -c echo"), "tests/oci:1.0")

	images, err := GetImagesFromDir(tempDir, true, nil)
	assert.Nil(t, err)
	assert.Len(t, images, 1)

	img := images[0]
	assert.Equal(t, FormatOCI, img.ImageFormat)
	assert.Equal(t, configDigest.Encoded(), img.ImageID)
	assert.Equal(t, configDigest.String(), img.ConfigDigest)
	assert.Equal(t, []string{"tests/oci:1.0"}, img.Tags)
	assert.Equal(t, "linux", img.Os)
	assert.Equal(t, "arm64", img.Architecture)
	assert.Equal(t, "v8", img.Variant)

	assert.Len(t, img.Layers, 1)
	layer := img.BottomLayer()
	assert.Equal(t, sha256Of(layerTar), layer.LayerID)
	assert.Equal(t, int64(len(layerTar)), layer.SizeBytes)
	assert.Equal(t, filepath.Join(tempDir, "blobs", "sha256", layer.LayerID), layer.ArchiveLocation)
	assert.Equal(t, "/bin/sh -c echo", layer.CreatedBy)
}

func TestOCIUnsupportedSchemaVersion(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layerTar := makeTarBytes(t, []fixtureTarEntry{fixtureFile("hello", "hello\n")})
	ociLayoutFixture(t, tempDir, [][]byte{layerTar}, singleLayerHistory("cmd"), "")

	if err := ioutil.WriteFile(filepath.Join(tempDir, "index.json"), []byte(`{"schemaVersion": 1, "manifests": []}`), 0644); err != nil {
		t.Fatal("expected index.json to be rewritten, got error", err)
	}

	_, loadErr := GetImagesFromDir(tempDir, true, nil)
	assert.NotNil(t, loadErr)
	_, isUnsupported := loadErr.(*UnsupportedSchemaVersionError)
	assert.True(t, isUnsupported)
}

func TestOCIUnsupportedMediaType(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layerTar := makeTarBytes(t, []fixtureTarEntry{fixtureFile("hello", "hello\n")})
	ociLayoutFixture(t, tempDir, [][]byte{layerTar}, singleLayerHistory("cmd"), "")

	index := `{"schemaVersion": 2, "manifests": [{"mediaType": "application/vnd.oci.image.index.v1+json", "digest": "sha256:` +
		sha256Of([]byte("x")) + `", "size": 1}]}`
	if err := ioutil.WriteFile(filepath.Join(tempDir, "index.json"), []byte(index), 0644); err != nil {
		t.Fatal("expected index.json to be rewritten, got error", err)
	}

	_, loadErr := GetImagesFromDir(tempDir, true, nil)
	assert.NotNil(t, loadErr)
	_, isUnsupported := loadErr.(*UnsupportedMediaTypeError)
	assert.True(t, isUnsupported)
}

func TestOCIVerifyBlobDigestMismatch(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layerTar := makeTarBytes(t, []fixtureTarEntry{fixtureFile("hello", "hello\n")})
	ociLayoutFixture(t, tempDir, [][]byte{layerTar}, singleLayerHistory("cmd"), "")

	// corrupt the layer blob
	blobLocation := filepath.Join(tempDir, "blobs", "sha256", sha256Of(layerTar))
	if err := ioutil.WriteFile(blobLocation, []byte("corrupted"), 0644); err != nil {
		t.Fatal("expected blob to be corrupted, got error", err)
	}

	_, verifyErr := GetImagesFromDir(tempDir, true, nil)
	assert.NotNil(t, verifyErr)
	_, isMismatch := verifyErr.(*LayerDigestMismatchError)
	assert.True(t, isMismatch)

	// without verification the image still loads
	images, err := GetImagesFromDir(tempDir, false, nil)
	assert.Nil(t, err)
	assert.Len(t, images, 1)
}
