package bark_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sre-norns/vellum/pkg/bark"
	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/nativelayer"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
)

func TestRestApiClient(t *testing.T) {
	api := newTestApi(t)
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	client, err := bark.NewRestApiClient(server.URL, server.Client())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := client.CreateSession(ctx, preview.DefaultInitialSettings())
	require.NoError(t, err)
	require.Equal(t, 0, created.Ticket.RequestID)

	ids, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{created.ID}, ids)

	got, err := client.SetSetting(ctx, created.ID, ticket.Margins, json.RawMessage(`"MINIMUM"`))
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)

	got, err = client.SetSetting(ctx, created.ID, ticket.PagesPerSheet, json.RawMessage(`4`))
	require.NoError(t, err)
	require.Equal(t, 2, got.RequestID)
	require.Equal(t, ticket.MarginsDefault, got.MarginsType)

	setting, err := client.GetSetting(ctx, created.ID, ticket.PagesPerSheet)
	require.NoError(t, err)
	require.EqualValues(t, 4, setting.Value)

	got, err = client.SetDestination(ctx, created.ID, "BarDevice")
	require.NoError(t, err)
	require.Equal(t, 3, got.RequestID)

	current, err := client.Ticket(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, got, current)

	api.flush(t, created.ID)
	_, contentType, ok, err := client.Preview(ctx, created.ID, "latest")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, nativelayer.StubContentType, contentType)

	previews, err := client.ListPreviews(ctx, created.ID, dbstore.Pagination{Limit: 100})
	require.NoError(t, err)
	require.NotEmpty(t, previews)

	require.NoError(t, client.DeleteSession(ctx, created.ID))

	_, err = client.Ticket(ctx, created.ID)
	var apiErr *bark.ErrorResponse
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestRestApiClient_InvalidValue(t *testing.T) {
	api := newTestApi(t)
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	client, err := bark.NewRestApiClient(server.URL, server.Client())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := client.CreateSession(ctx, preview.DefaultInitialSettings())
	require.NoError(t, err)

	_, err = client.SetSetting(ctx, created.ID, ticket.Scaling, json.RawMessage(`"ninety"`))
	var apiErr *bark.ErrorResponse
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Code)
	require.NotEmpty(t, apiErr.Message)

	current, err := client.Ticket(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 0, current.RequestID)
}
