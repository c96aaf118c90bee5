package bark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
)

// RestApiClient talks to a preview-server.
type RestApiClient struct {
	baseUrl    *url.URL
	httpClient *http.Client
}

func NewRestApiClient(baseUrl string, httpClient *http.Client) (*RestApiClient, error) {
	u, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &RestApiClient{
		baseUrl:    u,
		httpClient: httpClient,
	}, nil
}

func (c *RestApiClient) do(ctx context.Context, method string, apiUrl *url.URL, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, ok := body.([]byte)
		if !ok {
			var err error
			if data, err = json.Marshal(body); err != nil {
				return nil, err
			}
		}
		reader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, apiUrl.String(), reader)
	if err != nil {
		return nil, err
	}
	request.Header.Add("Accept", "application/json")
	if body != nil {
		request.Header.Add("Content-Type", "application/json")
	}

	return c.httpClient.Do(request)
}

func readApiError(resp *http.Response) error {
	errorResponse := &ErrorResponse{
		Code:    resp.StatusCode,
		Message: resp.Status,
	}
	if err := json.NewDecoder(resp.Body).Decode(errorResponse); err != nil {
		// Not an API error body, fallback to HTTP status
		return errorResponse
	}

	errorResponse.Code = resp.StatusCode
	return errorResponse
}

func (c *RestApiClient) call(ctx context.Context, method, uri string, query url.Values, body any, expect int, dest any) error {
	resp, err := c.do(ctx, method, urlForPath(c.baseUrl, uri, query), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expect {
		return readApiError(resp)
	}
	if dest == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

func urlForPath(baseUrl *url.URL, apiPath string, query url.Values) *url.URL {
	rawQuery := ""
	if query != nil {
		rawQuery = query.Encode()
	}

	return &url.URL{
		Scheme:   baseUrl.Scheme,
		Opaque:   baseUrl.Opaque,
		User:     baseUrl.User,
		Host:     baseUrl.Host,
		Path:     path.Join(baseUrl.Path, "api/v1", apiPath),
		RawQuery: rawQuery,
	}
}

func sessionPath(id string, elements ...string) string {
	return path.Join(append([]string{"sessions", url.PathEscape(id)}, elements...)...)
}

func (c *RestApiClient) CreateSession(ctx context.Context, init preview.InitialSettings) (result CreatedSessionResponse, err error) {
	err = c.call(ctx, http.MethodPost, "sessions", nil, init, http.StatusCreated, &result)
	return
}

func (c *RestApiClient) ListSessions(ctx context.Context) (result []string, err error) {
	err = c.call(ctx, http.MethodGet, "sessions", nil, nil, http.StatusOK, &result)
	return
}

func (c *RestApiClient) Ticket(ctx context.Context, id string) (result ticket.Ticket, err error) {
	err = c.call(ctx, http.MethodGet, sessionPath(id, "ticket"), nil, nil, http.StatusOK, &result)
	return
}

// SetSetting sends value, a JSON document, as the new value of the setting.
func (c *RestApiClient) SetSetting(ctx context.Context, id string, name ticket.Name, value json.RawMessage) (result ticket.Ticket, err error) {
	err = c.call(ctx, http.MethodPut, sessionPath(id, "settings", string(name)), nil, []byte(value), http.StatusOK, &result)
	return
}

func (c *RestApiClient) GetSetting(ctx context.Context, id string, name ticket.Name) (result SettingResponse, err error) {
	err = c.call(ctx, http.MethodGet, sessionPath(id, "settings", string(name)), nil, nil, http.StatusOK, &result)
	return
}

func (c *RestApiClient) SetDestination(ctx context.Context, id, destinationID string) (result ticket.Ticket, err error) {
	err = c.call(ctx, http.MethodPut, sessionPath(id, "destination"), nil, DestinationRequest{ID: destinationID}, http.StatusOK, &result)
	return
}

func (c *RestApiClient) ListPreviews(ctx context.Context, id string, pagination dbstore.Pagination) ([]dbstore.Preview, error) {
	query := url.Values{}
	if pagination.Offset > 0 {
		query.Set("offset", strconv.FormatUint(uint64(pagination.Offset), 10))
	}
	if pagination.Limit > 0 {
		query.Set("limit", strconv.FormatUint(uint64(pagination.Limit), 10))
	}

	var result PaginatedResponse[dbstore.Preview]
	err := c.call(ctx, http.MethodGet, sessionPath(id, "previews"), query, nil, http.StatusOK, &result)
	return result.Data, err
}

// Preview fetches rendered content of a request, "latest" selects the most recent one.
// Returns false if the preview is still queued.
func (c *RestApiClient) Preview(ctx context.Context, id, requestID string) ([]byte, string, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, urlForPath(c.baseUrl, sessionPath(id, "previews", requestID), nil), nil)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		return nil, "", false, nil
	default:
		return nil, "", false, readApiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to read preview content: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), true, nil
}

func (c *RestApiClient) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(id), nil, nil, http.StatusNoContent, nil)
}
