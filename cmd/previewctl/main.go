package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"

	"github.com/sre-norns/vellum/pkg/config"
	"github.com/sre-norns/vellum/pkg/grace"
)

type commandContext struct {
	OutputFormatter formatter
	Context         context.Context
	Logger          log.Logger
}

type outputFormat string

func (f outputFormat) AfterApply(cfg *commandContext) (err error) {
	cfg.OutputFormatter, err = getFormatter(f)
	return err
}

var appCli struct {
	config.LogConfig `embed:""`

	Format outputFormat `enum:"yaml,yml,json" help:"Data output format" default:"yml"`

	Ticket       TicketCmd       `cmd:"" help:"Print the tickets a session emits for the given settings"`
	Destinations DestinationsCmd `cmd:"" help:"List known destinations and their capabilities"`
	Render       RenderCmd       `cmd:"" help:"Render a document preview to a PDF file"`
	Remote       RemoteCmd       `cmd:"" help:"Run a session against a preview server"`
	Har          HarCmd          `cmd:"" help:"Capture, inspect and convert HAR recordings"`
}

func main() {
	grace.ExitOrLog(config.LoadEnv(".env"))

	mainContext, stop := grace.SetupSignalHandler(context.Background())
	defer stop()

	cfg := &commandContext{
		Context:         mainContext,
		OutputFormatter: yamlFormatter,
		Logger:          log.NewNopLogger(),
	}
	appCtx := kong.Parse(&appCli,
		kong.Name("previewctl"),
		kong.Description("Print preview command line tool"),
		kong.Bind(cfg),
	)

	logger, err := appCli.NewLogger(os.Stderr)
	appCtx.FatalIfErrorf(err)
	cfg.Logger = logger

	grace.ExitOrLog(appCtx.Run(cfg))
}
