package configs

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// InspectCommandConfig is the inspect command configuration.
type InspectCommandConfig struct {
	flagBase

	CSV       bool
	ExtractTo string
	Verify    bool
}

// NewInspectCommandConfig returns new command configuration.
func NewInspectCommandConfig() *InspectCommandConfig {
	return &InspectCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *InspectCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.BoolVar(&c.CSV, "csv", false, "Print information as CSV instead of JSON")
		c.flagSet.StringVar(&c.ExtractTo, "extract-to", "", "Directory where the image tarball and its layers are extracted; when empty, the tarball is extracted to a temporary directory and the layers are not extracted")
		c.flagSet.BoolVar(&c.Verify, "verify", false, "Verify config and layer digests while loading")
	}
	return c.flagSet
}

// Validate validates the correctness of the configuration.
func (c *InspectCommandConfig) Validate() error {
	if c.ExtractTo != "" {
		stat, err := os.Stat(c.ExtractTo)
		if err != nil {
			return fmt.Errorf("extract-to directory does not exist: %s", c.ExtractTo)
		}
		if !stat.IsDir() {
			return fmt.Errorf("extract-to is not a directory: %s", c.ExtractTo)
		}
	}
	return nil
}

// SquashCommandConfig is the squash command configuration.
type SquashCommandConfig struct {
	flagBase

	Verify bool
}

// NewSquashCommandConfig returns new command configuration.
func NewSquashCommandConfig() *SquashCommandConfig {
	return &SquashCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *SquashCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.BoolVar(&c.Verify, "verify", false, "Verify config and layer digests while loading")
	}
	return c.flagSet
}

// DockerfileCommandConfig is the dockerfile command configuration.
type DockerfileCommandConfig struct {
	flagBase

	JSON bool
	CSV  bool
}

// NewDockerfileCommandConfig returns new command configuration.
func NewDockerfileCommandConfig() *DockerfileCommandConfig {
	return &DockerfileCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *DockerfileCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.BoolVar(&c.JSON, "json", false, "Print information as JSON")
		c.flagSet.BoolVar(&c.CSV, "csv", false, "Print information as CSV")
	}
	return c.flagSet
}

// Validate validates the correctness of the configuration.
func (c *DockerfileCommandConfig) Validate() error {
	if c.JSON && c.CSV {
		return fmt.Errorf("only one of --json or --csv can be requested")
	}
	return nil
}
