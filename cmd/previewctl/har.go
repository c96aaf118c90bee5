package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-kit/log/level"

	"github.com/sre-norns/vellum/pkg/harlog"
	httpparser "github.com/sre-norns/vellum/pkg/http-parser"
)

type (
	CaptureHar struct {
		harlog.RecorderOptions `embed:""`

		File string `help:"Request script (.http) to replay" short:"f" type:"existingfile" required:""`
		Out  string `help:"Name of the HAR file to write to. Default output is STDOUT" short:"o" type:"path"`
	}

	SummaryHar struct {
		File   string `arg:"" name:"path" help:"HAR file to summarize" type:"existingfile"`
		Suffix string `help:"Only include requests whose URL path ends with the suffix"`
	}

	ConvertHar struct {
		Files []string `arg:"" optional:"" name:"path" help:"HAR file(s) to convert" type:"existingfile"`
		Out   string   `help:"Name of the output file to write to. Default output is STDOUT" short:"o" type:"path"`
	}

	HarCmd struct {
		Capture CaptureHar `cmd:"" help:"Replay a request script and record it as HAR"`
		Summary SummaryHar `cmd:"" help:"Show recorded request payloads"`
		Convert ConvertHar `cmd:"" help:"Convert HAR file into a .http file format"`
	}
)

func (c *CaptureHar) Run(cfg *commandContext) error {
	content, _, err := readContent(c.File)
	if err != nil {
		return fmt.Errorf("failed to read request script: %w", err)
	}

	requests, err := httpparser.Parse(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse request script %q: %w", c.File, err)
	}

	recorder := harlog.NewRecorder(nil, c.RecorderOptions, cfg.Logger)
	replayErr := harlog.Replay(cfg.Context, recorder.Client(), requests, cfg.Logger)
	if replayErr != nil {
		level.Warn(cfg.Logger).Log("msg", "replay stopped early", "err", replayErr)
	}

	output, err := openOutput(c.Out)
	if err != nil {
		return err
	}
	defer output.Close()

	if _, err := recorder.WriteTo(output); err != nil {
		return err
	}

	return replayErr
}

func (c *SummaryHar) Run(cfg *commandContext) error {
	file, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open input HAR %q file: %w", c.File, err)
	}
	defer file.Close()

	harLog, err := harlog.Unmarshal(file)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(harlog.SummarizePosts(harlog.FilterByURLSuffix(harLog.Log.Entries, c.Suffix)))
}

func (c *ConvertHar) Run(cfg *commandContext) error {
	output, err := openOutput(c.Out)
	if err != nil {
		return err
	}
	defer output.Close()

	for _, filename := range c.Files {
		content, _, err := readContent(filename)
		if err != nil {
			return fmt.Errorf("failed to read input HAR %q file: %w", filename, err)
		}

		harLog, err := harlog.Unmarshal(bytes.NewReader(content))
		if err != nil {
			return err
		}

		requests, err := harlog.ToRequests(harLog.Log.Entries)
		if err != nil {
			return fmt.Errorf("failed to convert HAR: %w", err)
		}

		if err := httpparser.Marshal(output, requests); err != nil {
			return err
		}
	}

	return nil
}
