package image

import (
	"github.com/container-tools/dissect/pkg/archive"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// imageConfigDoc is the image config document shared by the docker-save and
// OCI formats. It is decoded from a key-lowercased mapping, so lookups are
// effectively case-insensitive.
type imageConfigDoc struct {
	Architecture    string                 `mapstructure:"architecture"`
	Author          string                 `mapstructure:"author"`
	Comment         string                 `mapstructure:"comment"`
	Created         string                 `mapstructure:"created"`
	DockerVersion   string                 `mapstructure:"docker_version"`
	Os              string                 `mapstructure:"os"`
	OsVersion       string                 `mapstructure:"os.version"`
	Variant         string                 `mapstructure:"variant"`
	Config          map[string]interface{} `mapstructure:"config"`
	ContainerConfig map[string]interface{} `mapstructure:"container_config"`
	History         []*HistoryEntry        `mapstructure:"history"`
	Rootfs          rootfsDoc              `mapstructure:"rootfs"`
}

type rootfsDoc struct {
	Type    string   `mapstructure:"type"`
	DiffIDs []string `mapstructure:"diff_ids"`
}

// decodeImageConfig decodes a raw config JSON mapping into a typed document.
func decodeImageConfig(location string, raw map[string]interface{}) (*imageConfigDoc, error) {
	doc := &imageConfigDoc{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           doc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(archive.LowerKeys(raw)); err != nil {
		return nil, errors.Wrapf(err, "failed decoding image config: %s", location)
	}
	return doc, nil
}

// author returns the author recorded on the config, preferring the inner
// config section.
func (d *imageConfigDoc) author() string {
	for _, section := range []map[string]interface{}{d.Config, d.ContainerConfig} {
		if author, ok := section["author"].(string); ok && author != "" {
			return author
		}
	}
	return d.Author
}

// labels returns the unique labels merged from the config and container_config
// sections.
func (d *imageConfigDoc) labels() map[string]string {
	labels := map[string]string{}
	for _, section := range []map[string]interface{}{d.Config, d.ContainerConfig} {
		sectionLabels, ok := section["labels"].(map[string]interface{})
		if !ok {
			continue
		}
		for key, value := range sectionLabels {
			if text, ok := value.(string); ok {
				labels[key] = text
			}
		}
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

// applyConfig copies the shared config attributes onto the image.
func (i *Image) applyConfig(doc *imageConfigDoc) {
	i.Os = doc.Os
	i.OsVersion = doc.OsVersion
	i.Architecture = doc.Architecture
	i.Variant = doc.Variant
	i.Created = doc.Created
	i.Author = doc.author()
	i.Comment = doc.Comment
	i.DockerVersion = doc.DockerVersion
	i.Labels = doc.labels()
	i.History = doc.History
}

// alignHistory copies the history attributes onto the layers when the number
// of non-empty history entries matches the number of layers. Differing counts
// leave the per-layer history attributes empty.
func alignHistory(layers []*Layer, history []*HistoryEntry) {
	nonEmpty := []*HistoryEntry{}
	for _, entry := range history {
		if !entry.EmptyLayer {
			nonEmpty = append(nonEmpty, entry)
		}
	}
	if len(nonEmpty) != len(layers) {
		return
	}
	for idx, layer := range layers {
		entry := nonEmpty[idx]
		layer.Author = entry.Author
		layer.Created = entry.Created
		layer.CreatedBy = entry.CreatedBy
		layer.Comment = entry.Comment
	}
}
