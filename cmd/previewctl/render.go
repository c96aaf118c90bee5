package main

import (
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/sre-norns/vellum/pkg/nativelayer"
	"github.com/sre-norns/vellum/pkg/ticket"
)

type RenderCmd struct {
	SessionFlags `embed:""`
	Chrome       nativelayer.ChromeOptions `embed:"" prefix:"chrome."`

	URL string `help:"Document to render" name:"url" required:""`
	Out string `help:"Name of the output file to write to. Default output is STDOUT" short:"o" type:"path"`
}

func (c *RenderCmd) Run(cfg *commandContext) error {
	chrome := nativelayer.NewChrome(c.Chrome, cfg.Logger)

	session, err := c.start(cfg.Context, chrome, cfg.Logger, c.URL, func(t ticket.Ticket) error {
		level.Debug(cfg.Logger).Log("msg", "ticket issued", "requestID", t.RequestID)
		return nil
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Flush(cfg.Context); err != nil {
		return err
	}

	latest, ok := session.LatestPreview()
	if !ok {
		return fmt.Errorf("no preview was rendered for %q", c.URL)
	}

	output, err := openOutput(c.Out)
	if err != nil {
		return err
	}
	defer output.Close()

	if _, err := output.Write(latest.Data); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}

	level.Info(cfg.Logger).Log("msg", "preview rendered", "requestID", latest.RequestID, "pages", latest.PageCount, "bytes", len(latest.Data))
	return nil
}
