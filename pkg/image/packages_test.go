package image

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInstalledPackagesFirstOccurrenceWins(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	bottomLocation := filepath.Join(tempDir, "bottom")
	topLocation := filepath.Join(tempDir, "top")
	os.MkdirAll(bottomLocation, 0755)
	os.MkdirAll(topLocation, 0755)

	bottom := &Layer{LayerID: "bottom", ArchiveLocation: "unused", ExtractedLocation: bottomLocation}
	top := &Layer{LayerID: "top", ArchiveLocation: "unused", ExtractedLocation: topLocation}
	img := &Image{Layers: []*Layer{bottom, top}}

	perLayer := map[string][]InstalledPackage{
		bottomLocation: {
			{PackageURL: "pkg:deb/debian/base@1.0", Package: "base-bottom"},
		},
		topLocation: {
			{PackageURL: "pkg:deb/debian/base@1.0", Package: "base-top"},
			{PackageURL: "pkg:deb/debian/curl@7.0", Package: "curl"},
		},
	}

	packages, err := img.GetInstalledPackages(func(rootfsDir string) ([]InstalledPackage, error) {
		return perLayer[rootfsDir], nil
	})
	assert.Nil(t, err)
	assert.Len(t, packages, 2)

	// the duplicated purl is attributed to the bottom layer where it was first seen
	assert.Equal(t, "pkg:deb/debian/base@1.0", packages[0].PackageURL)
	assert.Equal(t, "base-bottom", packages[0].Package)
	assert.Equal(t, bottom, packages[0].Layer)
	assert.Equal(t, "pkg:deb/debian/curl@7.0", packages[1].PackageURL)
	assert.Equal(t, top, packages[1].Layer)
}

func TestGetInstalledPackagesRequiresExtraction(t *testing.T) {

	layer := &Layer{LayerID: "l1", ArchiveLocation: "unused"}
	img := &Image{Layers: []*Layer{layer}}

	_, err := img.GetInstalledPackages(func(string) ([]InstalledPackage, error) {
		return nil, nil
	})
	assert.NotNil(t, err)
}
