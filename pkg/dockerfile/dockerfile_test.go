package dockerfile

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const fixtureDockerfile = `FROM alpine:3.13
ENV LANG C.UTF-8
RUN apk add --no-cache curl
EXPOSE 8080
CMD ["/bin/sh"]
`

func TestParseBytes(t *testing.T) {

	df, err := ParseBytes([]byte(fixtureDockerfile), "Dockerfile")
	assert.Nil(t, err)
	assert.Equal(t, "alpine:3.13", df.BaseImage)
	assert.Len(t, df.Instructions, 5)
	assert.Equal(t, "FROM", df.Instructions[0].Instruction)
	assert.Equal(t, "ENV", df.Instructions[1].Instruction)
	assert.Equal(t, "RUN", df.Instructions[2].Instruction)
	assert.Equal(t, "apk add --no-cache curl", df.Instructions[2].Value)
	assert.Equal(t, "EXPOSE", df.Instructions[3].Instruction)
	assert.Equal(t, "8080", df.Instructions[3].Value)
}

func TestCollectDockerfiles(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	nested := filepath.Join(tempDir, "services", "api")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal("expected nested dir, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(tempDir, "Dockerfile"), []byte(fixtureDockerfile), 0644); err != nil {
		t.Fatal("expected Dockerfile to be written, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(nested, "Dockerfile.api"), []byte("FROM busybox\n"), 0644); err != nil {
		t.Fatal("expected Dockerfile to be written, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(nested, "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatal("expected unrelated file to be written, got error", err)
	}

	dockerfiles, err := CollectDockerfiles(tempDir, nil)
	assert.Nil(t, err)
	assert.Len(t, dockerfiles, 2)
}

func TestFlattenDockerfiles(t *testing.T) {

	df, err := ParseBytes([]byte(fixtureDockerfile), "Dockerfile")
	assert.Nil(t, err)

	records := FlattenDockerfiles([]*Dockerfile{df})
	assert.Len(t, records, 5)
	for _, record := range records {
		assert.Len(t, record, len(FlatHeaders))
	}
	assert.Equal(t, "0", records[0][2])
	assert.Equal(t, "FROM", records[0][3])
	assert.Equal(t, "alpine:3.13", records[0][1])
}

func TestReadFromStringLiteralAndFile(t *testing.T) {

	tempDir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal("expected temp dir, got error", err)
	}
	defer os.RemoveAll(tempDir)

	// literal input:
	literal, err := ReadFromString(fixtureDockerfile, tempDir)
	assert.Nil(t, err)
	assert.Len(t, literal.Dockerfile.Instructions, 5)

	// local file with a .dockerignore next to it:
	dockerfileLocation := filepath.Join(tempDir, "Dockerfile")
	if err := ioutil.WriteFile(dockerfileLocation, []byte(fixtureDockerfile), 0644); err != nil {
		t.Fatal("expected Dockerfile to be written, got error", err)
	}
	if err := ioutil.WriteFile(filepath.Join(tempDir, ".dockerignore"), []byte("node_modules\n*.log\n"), 0644); err != nil {
		t.Fatal("expected .dockerignore to be written, got error", err)
	}

	fromFile, err := ReadFromString(dockerfileLocation, tempDir)
	assert.Nil(t, err)
	assert.Len(t, fromFile.Dockerfile.Instructions, 5)
	assert.Equal(t, []string{"node_modules", "*.log"}, fromFile.ExcludePatterns)
}
