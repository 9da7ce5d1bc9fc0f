package inspect

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/container-tools/dissect/configs"
	"github.com/container-tools/dissect/pkg/image"
	"github.com/container-tools/dissect/pkg/tracing"
	"github.com/container-tools/dissect/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// Command is the inspect command declaration.
var Command = &cobra.Command{
	Use:   "inspect <image-path>",
	Short: "Finds container images and their layers in a tarball or directory",
	Run:   run,
	Long:  ``,
}

var (
	commandConfig = configs.NewInspectCommandConfig()
	logConfig     = configs.NewLoggingConfig()
	tracingConfig = configs.NewTracingConfig("dissect-inspect")
)

func initFlags() {
	Command.Flags().AddFlagSet(commandConfig.FlagSet())
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(tracingConfig.FlagSet())
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, args []string) {
	os.Exit(processCommand(cobraCommand, args))
}

func processCommand(cobraCommand *cobra.Command, args []string) int {

	cleanup := utils.NewDefers()
	defer cleanup.CallAll()

	rootLogger := logConfig.NewLogger("inspect")

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, cobraCommand.UsageString())
		return 2
	}
	imagePath := args[0]

	for _, validatingConfig := range []configs.ValidatingConfig{commandConfig} {
		if err := validatingConfig.Validate(); err != nil {
			rootLogger.Error("configuration is invalid", "reason", err)
			return 2
		}
	}

	tracer, tracerCleanupFunc, tracerErr := tracing.GetTracer(rootLogger.Named("tracer"), tracingConfig)
	if tracerErr != nil {
		rootLogger.Error("failed constructing tracer", "reason", tracerErr)
		return 1
	}
	cleanup.Add(tracerCleanupFunc)

	rootLogger, spanInspect := tracing.ApplyTraceLogDiscovery(rootLogger, tracer.StartSpan("inspect"))
	spanInspect.SetTag("image-path", imagePath)
	cleanup.Add(func() {
		spanInspect.Finish()
	})

	images, err := loadImages(imagePath, rootLogger)
	if err != nil {
		rootLogger.Error("failed loading images", "image-path", imagePath, "reason", err)
		spanInspect.SetBaggageItem("error", err.Error())
		return 1
	}

	if commandConfig.CSV {
		writer := csv.NewWriter(os.Stdout)
		if err := writer.Write(image.FlatLayerHeaders); err != nil {
			rootLogger.Error("failed writing CSV", "reason", err)
			return 1
		}
		if err := writer.WriteAll(image.FlattenImages(images)); err != nil {
			rootLogger.Error("failed writing CSV", "reason", err)
			return 1
		}
		writer.Flush()
		return 0
	}

	serialized, jsonErr := json.MarshalIndent(images, "", "  ")
	if jsonErr != nil {
		rootLogger.Error("failed serializing images to JSON", "reason", jsonErr)
		return 1
	}
	fmt.Println(string(serialized))

	return 0
}

// loadImages loads the images at imagePath, a directory with an extracted
// image or an image tarball. Tarballs are extracted to the configured
// directory, or to a temporary one.
func loadImages(imagePath string, logger hclog.Logger) ([]*image.Image, error) {
	stat, err := os.Stat(imagePath)
	if err != nil {
		return nil, err
	}

	if stat.IsDir() {
		return image.GetImagesFromDir(imagePath, commandConfig.Verify, logger)
	}

	extractTo := commandConfig.ExtractTo
	if extractTo == "" {
		tempDir, err := utils.TempDir("dissect-inspect")
		if err != nil {
			return nil, err
		}
		extractTo = tempDir
	}
	logger.Info("extracting image tarball", "target", extractTo)

	images, err := image.GetImagesFromTarball(imagePath, extractTo, commandConfig.Verify, false, logger)
	if err != nil {
		return nil, err
	}

	if commandConfig.ExtractTo != "" {
		for _, img := range images {
			if err := img.ExtractLayers(extractTo, false, logger); err != nil {
				return nil, err
			}
			if _, err := img.GetAndSetDistro(); err != nil {
				logger.Warn("failed detecting distro", "image-id", img.ImageID, "reason", err)
			}
		}
	}
	return images, nil
}
