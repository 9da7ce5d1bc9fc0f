package image

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

type fixtureTarEntry struct {
	name     string
	typeflag byte
	content  string
}

func fixtureFile(name, content string) fixtureTarEntry {
	return fixtureTarEntry{name: name, typeflag: tar.TypeReg, content: content}
}

func fixtureDir(name string) fixtureTarEntry {
	return fixtureTarEntry{name: name, typeflag: tar.TypeDir}
}

func makeTarBytes(t *testing.T, entries []fixtureTarEntry) []byte {
	buf := &bytes.Buffer{}
	writer := tar.NewWriter(buf)
	for _, entry := range entries {
		header := &tar.Header{
			Name:     entry.name,
			Typeflag: entry.typeflag,
			Mode:     0755,
			Size:     int64(len(entry.content)),
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatal("expected tar header to be written, got error", err)
		}
		if entry.content != "" {
			if _, err := writer.Write([]byte(entry.content)); err != nil {
				t.Fatal("expected tar content to be written, got error", err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal("expected tar to be closed, got error", err)
	}
	return buf.Bytes()
}

func sha256Of(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// dockerImageFixture builds a docker-save v1.1/v1.2 layout in imageDir from
// the given layer tarballs and history, and returns the image id.
func dockerImageFixture(t *testing.T, imageDir string, layerTars [][]byte, history []*HistoryEntry, tags []string) string {
	diffIDs := []string{}
	layerPaths := []string{}
	for idx, layerTar := range layerTars {
		diffID := sha256Of(layerTar)
		// the directory name is a chain id distinct from the diff_id, the way
		// "docker save" lays layers out
		dirName := sha256Of([]byte(fmt.Sprintf("chain-%d-%s", idx, diffID)))
		layerDir := filepath.Join(imageDir, dirName)
		if err := os.MkdirAll(layerDir, 0755); err != nil {
			t.Fatal("expected layer dir to be created, got error", err)
		}
		if err := ioutil.WriteFile(filepath.Join(layerDir, "layer.tar"), layerTar, 0644); err != nil {
			t.Fatal("expected layer tar to be written, got error", err)
		}
		diffIDs = append(diffIDs, "sha256:"+diffID)
		layerPaths = append(layerPaths, dirName+"/layer.tar")
	}

	config := map[string]interface{}{
		"architecture":   "amd64",
		"os":             "linux",
		"docker_version": "19.03.12",
		"created":        "2020-07-06T21:56:31.455902938Z",
		"config": map[string]interface{}{
			"Labels": map[string]interface{}{"maintainer": "tests"},
		},
		"history": history,
		"rootfs": map[string]interface{}{
			"type":     "layers",
			"diff_ids": diffIDs,
		},
	}
	configBytes, err := json.Marshal(config)
	if err != nil {
		t.Fatal("expected config to serialize, got error", err)
	}
	imageID := sha256Of(configBytes)
	if err := ioutil.WriteFile(filepath.Join(imageDir, imageID+".json"), configBytes, 0644); err != nil {
		t.Fatal("expected config file to be written, got error", err)
	}

	manifest := []map[string]interface{}{
		{
			"Config":   imageID + ".json",
			"Layers":   layerPaths,
			"RepoTags": tags,
		},
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal("expected manifest to serialize, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(imageDir, "manifest.json"), manifestBytes, 0644); err != nil {
		t.Fatal("expected manifest.json to be written, got error", err)
	}

	return imageID
}

func singleLayerHistory(createdBy string) []*HistoryEntry {
	return []*HistoryEntry{
		{Created: "2020-07-06T21:56:31Z", CreatedBy: createdBy},
	}
}
