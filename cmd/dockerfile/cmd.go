package dockerfile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/container-tools/dissect/configs"
	dockerfiles "github.com/container-tools/dissect/pkg/dockerfile"
	"github.com/container-tools/dissect/pkg/tracing"
	"github.com/container-tools/dissect/pkg/utils"
	"github.com/spf13/cobra"
)

// Command is the dockerfile command declaration.
var Command = &cobra.Command{
	Use:   "dockerfile <dir>",
	Short: "Finds and parses source Dockerfile files in a directory tree",
	Run:   run,
	Long:  ``,
}

var (
	commandConfig = configs.NewDockerfileCommandConfig()
	logConfig     = configs.NewLoggingConfig()
	tracingConfig = configs.NewTracingConfig("dissect-dockerfile")
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

	rootLogger := logConfig.NewLogger("dockerfile")

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, cobraCommand.UsageString())
		return 2
	}
	directory, err := filepath.Abs(args[0])
	if err != nil {
		rootLogger.Error("failed resolving directory", "reason", err)
		return 2
	}

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

	rootLogger, spanCollect := tracing.ApplyTraceLogDiscovery(rootLogger, tracer.StartSpan("collect-dockerfiles"))
	spanCollect.SetTag("directory", directory)
	cleanup.Add(func() {
		spanCollect.Finish()
	})

	collected, err := dockerfiles.CollectDockerfiles(directory, rootLogger)
	if err != nil {
		rootLogger.Error("failed collecting Dockerfiles", "directory", directory, "reason", err)
		spanCollect.SetBaggageItem("error", err.Error())
		return 1
	}
	if len(collected) == 0 {
		return 0
	}

	if commandConfig.CSV {
		writer := csv.NewWriter(os.Stdout)
		if err := writer.Write(dockerfiles.FlatHeaders); err != nil {
			rootLogger.Error("failed writing CSV", "reason", err)
			return 1
		}
		if err := writer.WriteAll(dockerfiles.FlattenDockerfiles(collected)); err != nil {
			rootLogger.Error("failed writing CSV", "reason", err)
			return 1
		}
		writer.Flush()
		return 0
	}

	serialized, jsonErr := json.MarshalIndent(collected, "", "  ")
	if jsonErr != nil {
		rootLogger.Error("failed serializing Dockerfiles to JSON", "reason", jsonErr)
		return 1
	}
	fmt.Println(string(serialized))

	return 0
}
