package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sre-norns/vellum/pkg/destination"
)

type DestinationsCmd struct {
	Destinations []string `arg:"" optional:"" name:"path" help:"Destination capability files or directories" type:"path"`
	Table        bool     `help:"Print a summary table instead of full capabilities" default:"true" negatable:""`
}

func describeMedia(caps destination.Capabilities) string {
	if caps.MediaSize == nil {
		return ""
	}

	names := make([]string, 0, len(caps.MediaSize.Option))
	for _, m := range caps.MediaSize.Option {
		name := m.DisplayName()
		if m.IsDefault {
			name += "*"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func describeDPI(caps destination.Capabilities) string {
	if caps.DPI == nil {
		return ""
	}

	values := make([]string, 0, len(caps.DPI.Option))
	for _, d := range caps.DPI.Option {
		value := fmt.Sprintf("%dx%d", d.HorizontalDPI, d.VerticalDPI)
		if d.IsDefault {
			value += "*"
		}
		values = append(values, value)
	}
	return strings.Join(values, ", ")
}

func (c *DestinationsCmd) Run(cfg *commandContext) error {
	flags := SessionFlags{Destinations: c.Destinations}
	catalog, err := flags.provider()
	if err != nil {
		return err
	}

	destinations := catalog.List()
	if !c.Table {
		return cfg.OutputFormatter(destinations)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Type", "Media", "Color", "Duplex", "DPI", "Max copies"})
	for _, d := range destinations {
		caps := d.Caps()
		t.AppendRow(table.Row{
			d.ID,
			d.DisplayName,
			d.Type,
			describeMedia(caps),
			caps.HasColorChoice(),
			caps.HasDuplexChoice(),
			describeDPI(caps),
			caps.MaxCopies(),
		})
	}
	t.Render()

	return nil
}
