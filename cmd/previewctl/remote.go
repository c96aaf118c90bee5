package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"

	"github.com/sre-norns/vellum/pkg/bark"
	"github.com/sre-norns/vellum/pkg/ticket"
)

type RemoteCmd struct {
	SessionFlags `embed:""`

	Server      string        `help:"Base URL of the preview server" default:"http://localhost:8080" env:"PREVIEW_SERVER"`
	Destination string        `help:"Switch the session to this destination after the settings are applied"`
	Out         string        `help:"Download the latest preview into this file" short:"o" type:"path"`
	Wait        time.Duration `help:"How long to wait for a queued preview" default:"30s"`
	Keep        bool          `help:"Keep the session on the server when done"`
}

func (c *RemoteCmd) Run(cfg *commandContext) error {
	client, err := bark.NewRestApiClient(c.Server, nil)
	if err != nil {
		return err
	}

	mutations, err := c.mutations()
	if err != nil {
		return err
	}
	init, err := c.initialSettings()
	if err != nil {
		return err
	}

	created, err := client.CreateSession(cfg.Context, init)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !c.Keep {
		defer func() {
			if err := client.DeleteSession(cfg.Context, created.ID); err != nil {
				level.Warn(cfg.Logger).Log("msg", "failed to delete session", "session", created.ID, "err", err)
			}
		}()
	}

	tickets := []ticket.Ticket{created.Ticket}
	current := created.Ticket
	for _, m := range mutations {
		value, err := json.Marshal(m.Value)
		if err != nil {
			return err
		}

		next, err := client.SetSetting(cfg.Context, created.ID, m.Name, value)
		if err != nil {
			return fmt.Errorf("failed to set %q: %w", m.Name, err)
		}
		if next.RequestID != current.RequestID {
			tickets = append(tickets, next)
		}
		current = next
	}

	if c.Destination != "" {
		next, err := client.SetDestination(cfg.Context, created.ID, c.Destination)
		if err != nil {
			return fmt.Errorf("failed to switch destination: %w", err)
		}
		if next.RequestID != current.RequestID {
			tickets = append(tickets, next)
		}
	}

	if c.Out != "" {
		if err := c.download(cfg, client, created.ID); err != nil {
			return err
		}
	}

	return cfg.OutputFormatter(tickets)
}

func (c *RemoteCmd) download(cfg *commandContext, client *bark.RestApiClient, id string) error {
	deadline := time.Now().Add(c.Wait)
	for {
		data, _, ok, err := client.Preview(cfg.Context, id, "latest")
		if err != nil {
			return fmt.Errorf("failed to fetch preview: %w", err)
		}
		if ok {
			output, err := openOutput(c.Out)
			if err != nil {
				return err
			}
			defer output.Close()

			_, err = output.Write(data)
			return err
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("preview of session %q is still queued after %v", id, c.Wait)
		}

		select {
		case <-cfg.Context.Done():
			return cfg.Context.Err()
		case <-time.After(time.Second):
		}
	}
}
