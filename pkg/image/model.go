package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/container-tools/dissect/pkg/archive"
	"github.com/container-tools/dissect/pkg/distro"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Format identifies the on-disk layout an image was loaded from.
type Format string

const (
	// FormatDocker is the docker-save v1.1/v1.2 layout with a top level manifest.json.
	FormatDocker = Format("docker")
	// FormatOCI is the OCI image layout with index.json, oci-layout and a blobs tree.
	FormatOCI = Format("oci")
)

// HistoryEntry is the per-step provenance record of an image config. Entries
// with EmptyLayer set describe steps without rootfs content and have no
// corresponding layer tarball.
type HistoryEntry struct {
	Author     string `json:"author,omitempty" mapstructure:"author"`
	Created    string `json:"created,omitempty" mapstructure:"created"`
	CreatedBy  string `json:"created_by,omitempty" mapstructure:"created_by"`
	Comment    string `json:"comment,omitempty" mapstructure:"comment"`
	EmptyLayer bool   `json:"empty_layer,omitempty" mapstructure:"empty_layer"`
}

// Layer represents a slice of a root filesystem backed by a layer tarball.
type Layer struct {
	// LayerID is the bare SHA256 of the layer tarball and is the layer identity.
	LayerID string `json:"layer_id"`
	// Sha256 is the layer diff_id, the digest of the uncompressed layer
	// tarball, and equals LayerID.
	Sha256    string `json:"sha256"`
	SizeBytes int64  `json:"size"`
	// ArchiveLocation is the absolute path of the layer tarball.
	ArchiveLocation string `json:"archive_location"`
	// ExtractedLocation is set when the layer is extracted and cleared by
	// Image.Cleanup.
	ExtractedLocation string `json:"extracted_location,omitempty"`
	IsEmptyLayer      bool   `json:"is_empty_layer"`

	// history-derived attributes
	Author    string `json:"author"`
	Created   string `json:"created"`
	CreatedBy string `json:"created_by"`
	Comment   string `json:"comment"`
}

// NewLayer returns a Layer for the tarball at archiveLocation, identified by
// the bare form of layerID. The archive location is required.
func NewLayer(layerID, archiveLocation string) (*Layer, error) {
	if archiveLocation == "" {
		return nil, fmt.Errorf("layer archive location is required")
	}
	bare := AsBareID(layerID)
	return &Layer{
		LayerID:         bare,
		Sha256:          bare,
		ArchiveLocation: archiveLocation,
	}, nil
}

// Extract extracts the layer tarball into targetDir/<layer id>, keeping
// symlinks, and records the location. When the layer was already extracted
// and force is not set, the previous extraction is reused.
func (l *Layer) Extract(targetDir string, force bool, logger hclog.Logger) error {
	extractedLocation := filepath.Join(targetDir, l.LayerID)
	if !force {
		if _, err := os.Stat(extractedLocation); err == nil {
			l.ExtractedLocation = extractedLocation
			return nil
		}
	}
	if err := archive.ExtractTarKeepingSymlinks(l.ArchiveLocation, extractedLocation, logger); err != nil {
		return err
	}
	l.ExtractedLocation = extractedLocation
	return nil
}

// GetResources returns a Resource for every file of the extracted layer,
// including directories when withDirs is set.
func (l *Layer) GetResources(withDirs bool) ([]Resource, error) {
	if l.ExtractedLocation == "" {
		return nil, fmt.Errorf("the layer has not been extracted")
	}
	resources := []Resource{}
	walkErr := filepath.Walk(l.ExtractedLocation, func(location string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if location == l.ExtractedLocation {
			return nil
		}
		if info.IsDir() && !withDirs {
			return nil
		}
		relative := strings.TrimPrefix(location, l.ExtractedLocation)
		resources = append(resources, Resource{
			Path:      filepath.ToSlash(relative),
			LayerPath: filepath.ToSlash(filepath.Join(l.LayerID, relative)),
			Location:  location,
			IsFile:    !info.IsDir(),
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
		})
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrapf(walkErr, "failed walking extracted layer: %s", l.ExtractedLocation)
	}
	return resources, nil
}

// Resource is a single file or directory inside an extracted layer.
type Resource struct {
	// Path is the layer-root-relative path of the resource.
	Path string `json:"path"`
	// LayerPath is the relative path including the layer id prefix.
	LayerPath string `json:"layer_path"`
	// Location is the absolute on-disk path.
	Location  string `json:"location"`
	IsFile    bool   `json:"is_file"`
	IsSymlink bool   `json:"is_symlink"`
}

// Image is a container image with its ordered layers.
type Image struct {
	ImageFormat Format `json:"image_format"`
	// ImageID is the bare SHA256 of the image config JSON.
	ImageID string `json:"image_id"`
	// ConfigDigest is the prefixed form of ImageID.
	ConfigDigest string `json:"config_digest"`
	ParentDigest string `json:"parent_digest,omitempty"`
	// Tags is the ordered list of name:version references of this image.
	Tags []string `json:"tags"`

	Os            string            `json:"os"`
	OsVersion     string            `json:"os_version"`
	Architecture  string            `json:"architecture"`
	Variant       string            `json:"variant,omitempty"`
	Created       string            `json:"created"`
	Author        string            `json:"author"`
	Comment       string            `json:"comment,omitempty"`
	DockerVersion string            `json:"docker_version"`
	Labels        map[string]string `json:"labels"`

	Distro *distro.Distro `json:"distro,omitempty"`

	// Layers is ordered bottom to top and contains no empty layers.
	Layers []*Layer `json:"layers"`
	// History is ordered bottom to top and includes empty-layer entries.
	History []*HistoryEntry `json:"history"`

	// ExtractedLocation is the directory holding manifest, config and layers.
	ExtractedLocation string `json:"extracted_location"`
	// ArchiveLocation is the original image tarball, when the image came from one.
	ArchiveLocation string `json:"archive_location,omitempty"`
}

// TopLayer returns the last, top-most layer of the image.
func (i *Image) TopLayer() *Layer {
	if len(i.Layers) == 0 {
		return nil
	}
	return i.Layers[len(i.Layers)-1]
}

// BottomLayer returns the first, root layer of the image.
func (i *Image) BottomLayer() *Layer {
	if len(i.Layers) == 0 {
		return nil
	}
	return i.Layers[0]
}

// ExtractLayers extracts every layer tarball into its own directory under
// targetDir, named after the layer id. Layers already extracted are skipped
// unless force is set.
func (i *Image) ExtractLayers(targetDir string, force bool, logger hclog.Logger) error {
	for _, layer := range i.Layers {
		if err := layer.Extract(targetDir, force, logger); err != nil {
			return errors.Wrapf(err, "failed extracting layer: %s", layer.LayerID)
		}
	}
	return nil
}

// GetLayersResources returns a Resource for each file in each layer.
func (i *Image) GetLayersResources(withDirs bool) ([]Resource, error) {
	resources := []Resource{}
	for _, layer := range i.Layers {
		layerResources, err := layer.GetResources(withDirs)
		if err != nil {
			return nil, err
		}
		resources = append(resources, layerResources...)
	}
	return resources, nil
}

// GetAndSetDistro detects the distro from the extracted bottom layer and
// stores it on the image.
func (i *Image) GetAndSetDistro() (*distro.Distro, error) {
	bottom := i.BottomLayer()
	if bottom == nil {
		return nil, fmt.Errorf("the image has no layers")
	}
	if bottom.ExtractedLocation == "" {
		return nil, fmt.Errorf("the image has not been extracted")
	}
	detected, err := distro.FromRootfs(bottom.ExtractedLocation, nil)
	if err != nil {
		return nil, err
	}
	i.Distro = detected
	return detected, nil
}

// Cleanup removes the extracted image files and clears the extraction state
// of every layer.
func (i *Image) Cleanup() error {
	if i.ExtractedLocation != "" {
		if err := os.RemoveAll(i.ExtractedLocation); err != nil {
			return errors.Wrapf(err, "failed removing extracted image: %s", i.ExtractedLocation)
		}
	}
	for _, layer := range i.Layers {
		layer.ExtractedLocation = ""
	}
	i.ExtractedLocation = ""
	return nil
}
