package dockerfile

import (
	"fmt"
	"strings"

	"github.com/container-tools/dissect/pkg/image"
)

// CannotAlignError is returned when a layer instruction cannot be aligned with
// a Dockerfile instruction.
type CannotAlignError struct {
	Order                 int
	DockerfileInstruction string
	LayerInstruction      string
}

func (e *CannotAlignError) Error() string {
	return fmt.Sprintf(
		"unable to align image layers with Dockerfile instructions: order=%d, dockerfile=%q, layer=%q",
		e.Order, e.DockerfileInstruction, e.LayerInstruction)
}

// AlignedCommandMismatchError is returned when an aligned instruction carries
// a different command in the Dockerfile and in the layer.
type AlignedCommandMismatchError struct {
	DockerfileCommand string
	LayerCommand      string
}

func (e *AlignedCommandMismatchError) Error() string {
	return fmt.Sprintf("different commands for aligned layer and Dockerfile: dockerfile=%q, layer=%q",
		e.DockerfileCommand, e.LayerCommand)
}

// matcher decides whether a Dockerfile command and a layer command represent
// the same instruction. The arguments are the Dockerfile command value and the
// normalised layer command value.
type matcher func(dockerfileCmd, layerCmd string) bool

func equal(dockerfileCmd, layerCmd string) bool {
	return dockerfileCmd == layerCmd
}

// allStringsIn is true when every whitespace-delimited token of the Dockerfile
// command, stripped of quotes, appears in the layer command.
func allStringsIn(dockerfileCmd, layerCmd string) bool {
	for _, token := range strings.Fields(dockerfileCmd) {
		if !strings.Contains(layerCmd, strings.Trim(token, "'\"")) {
			return false
		}
	}
	return true
}

// addEqualsOrUnknown is true for ADD commands pointing at build-context
// file:/dir: checksums, which can never be matched back to a Dockerfile.
func addEqualsOrUnknown(dockerfileCmd, layerCmd string) bool {
	if strings.Contains(layerCmd, "file:") || strings.Contains(layerCmd, "dir:") {
		return true
	}
	return dockerfileCmd == layerCmd
}

// instructionMatchers maps a Docker instruction to the comparison used when
// matching a layer command to a Dockerfile command.
var instructionMatchers = map[string]matcher{
	// FROM is special because always empty in layers
	"FROM":       func(string, string) bool { return true },
	"ADD":        addEqualsOrUnknown,
	"WORKDIR":    equal,
	"CMD":        allStringsIn,
	"ENV":        equal,
	"EXPOSE":     allStringsIn,
	"MAINTAINER": equal,
	"VOLUME": func(dockerfileCmd, layerCmd string) bool {
		return strings.Contains(dockerfileCmd, layerCmd)
	},
	"RUN":        equal,
	"COPY":       equal,
	"LABEL":      equal,
	"ENTRYPOINT": equal,
	"USER":       equal,
	"ONBUILD":    equal,
}

// NormalizedLayerCommand returns the instruction and command extracted from a
// layer created_by value, normalised to look like the original Dockerfile
// line.
func NormalizedLayerCommand(layerCommand string) (string, string) {
	cmd := strings.TrimSpace(layerCommand)
	cmd = strings.TrimPrefix(cmd, "/bin/sh -c ")
	cmd = strings.TrimSpace(strings.Replace(cmd, "#(nop) ", "", 1))

	if cmd == "" {
		return "FROM", ""
	}

	// RUN commands are not kept verbatim in created_by, anything not starting
	// with a known instruction token is one
	instruction := "RUN"
	parts := strings.SplitN(cmd, " ", 2)
	if _, known := instructionMatchers[parts[0]]; known {
		instruction = parts[0]
		cmd = ""
		if len(parts) == 2 {
			cmd = strings.TrimSpace(parts[1])
		}
	}

	if instruction == "ADD" || instruction == "COPY" {
		// normalise "ADD src in /dest" to "ADD src /dest"
		cmd = strings.Replace(cmd, " in ", " ", 1)
	}

	if instruction == "CMD" && strings.HasPrefix(cmd, "[/bin/sh -c ") {
		cmd = strings.Replace(cmd, "[/bin/sh -c ", "", 1)
		cmd = strings.Trim(cmd, "[]")
	}

	return instruction, cmd
}

// AlignedLayer pairs an image layer with the Dockerfile instruction that
// produced it.
type AlignedLayer struct {
	Layer       *image.Layer
	Instruction Instruction
}

// Alignment is the result of mapping an image's layers back to a Dockerfile.
type Alignment struct {
	// Aligned lists the layer/instruction pairs, top layer first.
	Aligned []AlignedLayer
	// BaseImageLayers lists the unaligned trailing layers, attributed to the
	// base image of the Dockerfile's FROM instruction.
	BaseImageLayers []*image.Layer
}

// MapImageToDockerfile attempts to align the Dockerfile instructions with the
// image layers, top to top. When the mapping holds, the Dockerfile was used to
// build the corresponding image layers. The leading FROM instruction is
// skipped as it is never represented in the layer stream. A failed alignment
// does not modify the image.
func MapImageToDockerfile(img *image.Image, df *Dockerfile) (*Alignment, error) {
	if len(df.Instructions) == 0 || df.Instructions[0].Instruction != "FROM" {
		return nil, &CannotAlignError{Order: 0, DockerfileInstruction: "FROM", LayerInstruction: ""}
	}
	// the FROM instruction never exists in the layers
	instructions := df.Instructions[1:]

	alignment := &Alignment{}

	layers := img.Layers
	for order := 0; order < len(layers); order++ {
		layer := layers[len(layers)-1-order]
		if order >= len(instructions) {
			// an unaligned layer comes from the base image
			alignment.BaseImageLayers = append(alignment.BaseImageLayers, layer)
			continue
		}
		instruction := instructions[len(instructions)-1-order]

		layerInstruction, layerCmd := NormalizedLayerCommand(layer.CreatedBy)
		if instruction.Instruction != layerInstruction {
			return nil, &CannotAlignError{
				Order:                 order,
				DockerfileInstruction: instruction.Instruction,
				LayerInstruction:      layerInstruction,
			}
		}
		hasSameCommand, known := instructionMatchers[instruction.Instruction]
		if !known {
			hasSameCommand = equal
		}
		if !hasSameCommand(instruction.Value, layerCmd) {
			return nil, &AlignedCommandMismatchError{
				DockerfileCommand: instruction.Value,
				LayerCommand:      layerCmd,
			}
		}
		alignment.Aligned = append(alignment.Aligned, AlignedLayer{Layer: layer, Instruction: instruction})
	}

	return alignment, nil
}
