package squash

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/container-tools/dissect/configs"
	"github.com/container-tools/dissect/pkg/image"
	"github.com/container-tools/dissect/pkg/rootfs"
	"github.com/container-tools/dissect/pkg/tracing"
	"github.com/container-tools/dissect/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// Command is the squash command declaration.
var Command = &cobra.Command{
	Use:   "squash <image-path> <target-dir>",
	Short: "Extracts and squashes an image into a single rootfs, merging all layers",
	Run:   run,
	Long:  ``,
}

var (
	commandConfig = configs.NewSquashCommandConfig()
	logConfig     = configs.NewLoggingConfig()
	tracingConfig = configs.NewTracingConfig("dissect-squash")
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

	rootLogger := logConfig.NewLogger("squash")

	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, cobraCommand.UsageString())
		return 2
	}
	imagePath := args[0]
	targetDir, err := filepath.Abs(args[1])
	if err != nil {
		rootLogger.Error("failed resolving target directory", "reason", err)
		return 2
	}

	tracer, tracerCleanupFunc, tracerErr := tracing.GetTracer(rootLogger.Named("tracer"), tracingConfig)
	if tracerErr != nil {
		rootLogger.Error("failed constructing tracer", "reason", tracerErr)
		return 1
	}
	cleanup.Add(tracerCleanupFunc)

	rootLogger, spanSquash := tracing.ApplyTraceLogDiscovery(rootLogger, tracer.StartSpan("squash"))
	spanSquash.SetTag("image-path", imagePath)
	spanSquash.SetTag("target-dir", targetDir)
	cleanup.Add(func() {
		spanSquash.Finish()
	})

	images, err := loadImages(imagePath, rootLogger)
	if err != nil {
		rootLogger.Error("failed loading images", "image-path", imagePath, "reason", err)
		spanSquash.SetBaggageItem("error", err.Error())
		return 1
	}
	if len(images) != 1 {
		rootLogger.Error("can only squash one image at a time", "image-count", len(images))
		return 1
	}

	deletions, err := rootfs.RebuildRootfs(images[0], targetDir, rootLogger)
	if err != nil {
		rootLogger.Error("failed rebuilding rootfs", "target-dir", targetDir, "reason", err)
		spanSquash.SetBaggageItem("error", err.Error())
		return 1
	}

	rootLogger.Info("rootfs rebuilt", "target-dir", targetDir, "whiteout-deletions", len(deletions))

	return 0
}

func loadImages(imagePath string, logger hclog.Logger) ([]*image.Image, error) {
	stat, err := os.Stat(imagePath)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return image.GetImagesFromDir(imagePath, commandConfig.Verify, logger)
	}
	extractTo, err := utils.TempDir("dissect-squash")
	if err != nil {
		return nil, err
	}
	logger.Info("extracting image tarball", "target", extractTo)
	return image.GetImagesFromTarball(imagePath, extractTo, commandConfig.Verify, false, logger)
}
