package image

import (
	"strconv"
	"strings"
)

// FlatLayerHeaders is the column order of the per-layer CSV output.
var FlatLayerHeaders = []string{
	"image_dir",
	"image_id",
	"image_tags",
	"author",
	"created_by",
	"layer_id",
	"layer_sha256",
	"layer_size",
	"is_empty_layer",
	"layer_location",
}

// FlattenImages returns one CSV record per layer of each image, in the
// FlatLayerHeaders column order.
func FlattenImages(images []*Image) [][]string {
	records := [][]string{}
	for _, img := range images {
		for _, layer := range img.Layers {
			records = append(records, []string{
				img.ExtractedLocation,
				img.ImageID,
				strings.Join(img.Tags, ","),
				layer.Author,
				layer.CreatedBy,
				layer.LayerID,
				layer.Sha256,
				strconv.FormatInt(layer.SizeBytes, 10),
				strconv.FormatBool(layer.IsEmptyLayer),
				layer.ArchiveLocation,
			})
		}
	}
	return records
}
