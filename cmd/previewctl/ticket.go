package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log"

	"github.com/sre-norns/vellum/pkg/config"
	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/grace"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
)

// SessionFlags describe the session a command starts from.
type SessionFlags struct {
	Printer      string   `help:"Destination to start the session with, overrides the settings file"`
	Settings     string   `help:"Initial settings file (YAML or JSON)" type:"existingfile" short:"s"`
	Set          []string `help:"Setting mutation as name=value, applied in order. Structured values are YAML, e.g. mediaSize={width_microns: 210000, height_microns: 297000}" sep:"none"`
	Destinations []string `help:"Destination capability files or directories" type:"path" short:"d"`
}

type settingMutation struct {
	Name  ticket.Name
	Value any
}

func parseMutation(text string) (settingMutation, error) {
	name, value, ok := strings.Cut(text, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return settingMutation{}, grace.RaiseError("a setting mutation in the name=value form", fmt.Sprintf("%q", text), "pass settings as --set name=value, for example --set copies=2")
	}

	parsed, err := ticket.ParseValue(ticket.Name(name), value)
	if err != nil {
		return settingMutation{}, err
	}

	return settingMutation{Name: ticket.Name(name), Value: parsed}, nil
}

func (f *SessionFlags) provider() (*destination.Catalog, error) {
	if len(f.Destinations) == 0 {
		return destination.NewCatalog(destination.Template("FooDevice")), nil
	}

	return destination.LoadCatalog(f.Destinations...)
}

func (f *SessionFlags) initialSettings() (preview.InitialSettings, error) {
	init, err := config.LoadInitialSettings(f.Settings)
	if err != nil {
		return init, err
	}
	if f.Printer != "" {
		init.PrinterName = f.Printer
	}

	return init, nil
}

func (f *SessionFlags) mutations() ([]settingMutation, error) {
	result := make([]settingMutation, 0, len(f.Set))
	for _, text := range f.Set {
		m, err := parseMutation(text)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	return result, nil
}

// start initializes a session and applies mutations in order. onTicket sees every ticket that was issued.
func (f *SessionFlags) start(ctx context.Context, renderer preview.Renderer, logger log.Logger, documentURL string, onTicket func(ticket.Ticket) error) (*preview.Session, error) {
	mutations, err := f.mutations()
	if err != nil {
		return nil, err
	}
	init, err := f.initialSettings()
	if err != nil {
		return nil, err
	}
	if documentURL != "" {
		init.DocumentURL = documentURL
	}
	provider, err := f.provider()
	if err != nil {
		return nil, err
	}

	session := preview.NewSession(provider, renderer, preview.WithLogger(logger))
	current, err := session.Initialize(ctx, init)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	if err := onTicket(current); err != nil {
		_ = session.Close()
		return nil, err
	}

	for _, m := range mutations {
		next, err := session.SetSetting(m.Name, m.Value)
		if err != nil {
			_ = session.Close()
			return nil, err
		}

		if next.RequestID != current.RequestID {
			if err := onTicket(next); err != nil {
				_ = session.Close()
				return nil, err
			}
		}
		current = next
	}

	return session, nil
}

// nopRenderer completes previews immediately without rendering anything.
var nopRenderer = preview.RendererFunc(func(_ context.Context, req preview.Request) (preview.Response, error) {
	return preview.Response{RequestID: req.RequestID, PrintTicket: req.PrintTicket}, nil
})

type TicketCmd struct {
	SessionFlags `embed:""`

	Last bool `help:"Print only the ticket in effect after all mutations"`
}

func (c *TicketCmd) Run(cfg *commandContext) error {
	var tickets []ticket.Ticket
	session, err := c.start(cfg.Context, nopRenderer, cfg.Logger, "", func(t ticket.Ticket) error {
		tickets = append(tickets, t)
		return nil
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if c.Last {
		current, err := session.Ticket()
		if err != nil {
			return err
		}
		return cfg.OutputFormatter(current)
	}

	return cfg.OutputFormatter(tickets)
}
