package dockerfile

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/pkg/errors"
)

// Instruction is a single Dockerfile instruction line.
type Instruction struct {
	Instruction string `json:"instruction"`
	Value       string `json:"value"`
	StartLine   int    `json:"startline"`
}

// Dockerfile is a parsed Dockerfile.
type Dockerfile struct {
	Location     string        `json:"location"`
	BaseImage    string        `json:"base_image"`
	Instructions []Instruction `json:"instructions"`
}

// ParseBytes parses Dockerfile content into the ordered instruction list.
func ParseBytes(content []byte, location string) (*Dockerfile, error) {
	result, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrapf(err, "failed parsing Dockerfile: %s", location)
	}

	df := &Dockerfile{Location: location, Instructions: []Instruction{}}
	for _, child := range result.AST.Children {
		values := []string{}
		for current := child.Next; current != nil; current = current.Next {
			values = append(values, current.Value)
		}
		instruction := Instruction{
			Instruction: strings.ToUpper(child.Value),
			Value:       strings.Join(values, " "),
			StartLine:   child.StartLine,
		}
		if instruction.Instruction == "FROM" && df.BaseImage == "" && len(values) > 0 {
			df.BaseImage = values[0]
		}
		df.Instructions = append(df.Instructions, instruction)
	}
	return df, nil
}

// ParseFile parses the Dockerfile at location.
func ParseFile(location string) (*Dockerfile, error) {
	content, err := ioutil.ReadFile(location)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading Dockerfile: %s", location)
	}
	return ParseBytes(content, location)
}

// CollectDockerfiles walks the directory tree at location and parses every
// file whose name contains "Dockerfile". Files which fail to parse are
// skipped.
func CollectDockerfiles(location string, logger hclog.Logger) ([]*Dockerfile, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	dockerfiles := []*Dockerfile{}
	err := filepath.Walk(location, func(fileLocation string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.Contains(info.Name(), "Dockerfile") {
			return nil
		}
		df, parseErr := ParseFile(fileLocation)
		if parseErr != nil {
			logger.Debug("skipping file that does not parse as a Dockerfile",
				"file", fileLocation, "reason", parseErr)
			return nil
		}
		dockerfiles = append(dockerfiles, df)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed walking directory: %s", location)
	}
	return dockerfiles, nil
}

// FlatHeaders is the column order of the flattened CSV output.
var FlatHeaders = []string{"location", "base_image", "order", "instruction", "value"}

// FlattenDockerfiles returns one CSV record per instruction of each
// Dockerfile, in the FlatHeaders column order.
func FlattenDockerfiles(dockerfiles []*Dockerfile) [][]string {
	records := [][]string{}
	for _, df := range dockerfiles {
		for order, instruction := range df.Instructions {
			records = append(records, []string{
				df.Location,
				df.BaseImage,
				strconv.Itoa(order),
				instruction.Instruction,
				instruction.Value,
			})
		}
	}
	return records
}
