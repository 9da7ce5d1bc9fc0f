package rootfs

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/container-tools/dissect/pkg/image"
	"github.com/stretchr/testify/assert"
)

type testTarEntry struct {
	name     string
	typeflag byte
	content  string
}

func testFile(name, content string) testTarEntry {
	return testTarEntry{name: name, typeflag: tar.TypeReg, content: content}
}

func testDir(name string) testTarEntry {
	return testTarEntry{name: name, typeflag: tar.TypeDir}
}

func writeLayerTar(t *testing.T, dir, name string, entries []testTarEntry) *image.Layer {
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

	location := filepath.Join(dir, name)
	if err := ioutil.WriteFile(location, buf.Bytes(), 0644); err != nil {
		t.Fatal("expected layer tar to be written, got error", err)
	}
	layer, err := image.NewLayer(fmt.Sprintf("%x", sha256.Sum256(buf.Bytes())), location)
	if err != nil {
		t.Fatal("expected layer to be constructed, got error", err)
	}
	return layer
}

func listTree(t *testing.T, root string) []string {
	paths := []string{}
	err := filepath.Walk(root, func(location string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if location == root {
			return nil
		}
		relative, relErr := filepath.Rel(root, location)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, "/"+filepath.ToSlash(relative))
		return nil
	})
	if err != nil {
		t.Fatal("expected tree to be walked, got error", err)
	}
	sort.Strings(paths)
	return paths
}

func TestRebuildRootfsSingleLayer(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layer := writeLayerTar(t, tempDir, "layer1.tar", []testTarEntry{
		testFile("hello", "hello world\n"),
	})
	img := &image.Image{Layers: []*image.Layer{layer}}

	targetDir := filepath.Join(tempDir, "rootfs")
	os.MkdirAll(targetDir, 0755)

	deletions, err := RebuildRootfs(img, targetDir, nil)
	assert.Nil(t, err)
	assert.Empty(t, deletions)
	assert.Equal(t, []string{"/hello"}, listTree(t, targetDir))
}

func TestRebuildRootfsTwoLayersWithAdditions(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layer1 := writeLayerTar(t, tempDir, "layer1.tar", []testTarEntry{
		testFile("hello", "hello\n"),
	})
	layer2 := writeLayerTar(t, tempDir, "layer2.tar", []testTarEntry{
		testDir("additions/"),
		testFile("additions/bar", "bar"),
		testFile("additions/foo", "foo"),
		testFile("additions/hello", "hello"),
		testDir("additions/baz/"),
		testFile("additions/baz/this", "this"),
	})
	img := &image.Image{Layers: []*image.Layer{layer1, layer2}}

	targetDir := filepath.Join(tempDir, "rootfs")
	os.MkdirAll(targetDir, 0755)

	deletions, err := RebuildRootfs(img, targetDir, nil)
	assert.Nil(t, err)
	assert.Empty(t, deletions)

	expected := []string{
		"/additions",
		"/additions/bar",
		"/additions/baz",
		"/additions/baz/this",
		"/additions/foo",
		"/additions/hello",
		"/hello",
	}
	assert.Equal(t, expected, listTree(t, targetDir))
}

func TestRebuildRootfsExplicitWhiteout(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layer1 := writeLayerTar(t, tempDir, "layer1.tar", []testTarEntry{
		testDir("a/"),
		testFile("a/file", "data"),
	})
	layer2 := writeLayerTar(t, tempDir, "layer2.tar", []testTarEntry{
		testDir("a/"),
		testFile("a/.wh.file", ""),
	})
	img := &image.Image{Layers: []*image.Layer{layer1, layer2}}

	targetDir := filepath.Join(tempDir, "rootfs")
	os.MkdirAll(targetDir, 0755)

	deletions, err := RebuildRootfs(img, targetDir, nil)
	assert.Nil(t, err)

	assert.Equal(t, []string{"/a"}, listTree(t, targetDir))
	assert.Len(t, deletions, 1)
	assert.True(t, strings.HasSuffix(deletions[0], "/a/file"))
}

func TestRebuildRootfsOpaqueWhiteout(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layer1 := writeLayerTar(t, tempDir, "layer1.tar", []testTarEntry{
		testDir("a/"),
		testFile("a/x", "x"),
		testFile("a/y", "y"),
	})
	layer2 := writeLayerTar(t, tempDir, "layer2.tar", []testTarEntry{
		testDir("a/"),
		testFile("a/.wh..wh..opq", ""),
	})
	img := &image.Image{Layers: []*image.Layer{layer1, layer2}}

	targetDir := filepath.Join(tempDir, "rootfs")
	os.MkdirAll(targetDir, 0755)

	deletions, err := RebuildRootfs(img, targetDir, nil)
	assert.Nil(t, err)

	assert.Equal(t, []string{"/a"}, listTree(t, targetDir))
	assert.Len(t, deletions, 1)
	assert.True(t, strings.HasSuffix(deletions[0], "/a"))
}

func TestRebuildRootfsWhiteoutOfMissingPath(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layer := writeLayerTar(t, tempDir, "layer1.tar", []testTarEntry{
		testDir("a/"),
		testFile("a/.wh.never-existed", ""),
	})
	img := &image.Image{Layers: []*image.Layer{layer}}

	targetDir := filepath.Join(tempDir, "rootfs")
	os.MkdirAll(targetDir, 0755)

	deletions, err := RebuildRootfs(img, targetDir, nil)
	assert.Nil(t, err)
	assert.Len(t, deletions, 1)
	assert.Equal(t, []string{"/a"}, listTree(t, targetDir))
}

func TestRebuildRootfsIdempotent(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	layer1 := writeLayerTar(t, tempDir, "layer1.tar", []testTarEntry{
		testFile("hello", "hello\n"),
		testDir("a/"),
		testFile("a/file", "data"),
	})
	layer2 := writeLayerTar(t, tempDir, "layer2.tar", []testTarEntry{
		testDir("a/"),
		testFile("a/.wh.file", ""),
		testFile("a/other", "other"),
	})
	img := &image.Image{Layers: []*image.Layer{layer1, layer2}}

	firstTarget := filepath.Join(tempDir, "rootfs1")
	secondTarget := filepath.Join(tempDir, "rootfs2")
	os.MkdirAll(firstTarget, 0755)
	os.MkdirAll(secondTarget, 0755)

	_, err = RebuildRootfs(img, firstTarget, nil)
	assert.Nil(t, err)
	_, err = RebuildRootfs(img, secondTarget, nil)
	assert.Nil(t, err)

	assert.Equal(t, listTree(t, firstTarget), listTree(t, secondTarget))
}

func TestRebuildRootfsRequiresDirectory(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	img := &image.Image{}
	_, missingErr := RebuildRootfs(img, filepath.Join(tempDir, "missing"), nil)
	assert.NotNil(t, missingErr)
}

func TestWhiteablePath(t *testing.T) {

	whiteable, ok := WhiteablePath("/tmp/layer/a/.wh.file")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/layer/a/file", whiteable)

	whiteable, ok = WhiteablePath("/tmp/layer/a/.wh..wh..opq")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/layer/a", whiteable)

	_, ok = WhiteablePath("/tmp/layer/a/regular")
	assert.False(t, ok)
}

func TestIsWhiteoutMarker(t *testing.T) {

	assert.True(t, IsWhiteoutMarker(".wh.somepath"))
	assert.True(t, IsWhiteoutMarker(".wh..wh..opq"))
	assert.True(t, IsWhiteoutMarker("somepath/.wh.foo"))
	assert.True(t, IsWhiteoutMarker("somepath/.wh.foo/"))
	assert.False(t, IsWhiteoutMarker("somepath.wh."))
}
