package items

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// REST is a registry backed by the openHAB REST API.
type REST struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewREST creates a REST registry for the server at baseURL (e.g. "http://openhab:8080").
func NewREST(baseURL, token string, httpClient *http.Client) *REST {
	return &REST{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (r *REST) url(name string, suffix string) string {
	return fmt.Sprintf("%s/rest/items/%s%s", r.baseURL, url.PathEscape(name), suffix)
}

func (r *REST) request(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	req.Header.Set("Accept", "text/plain")
	return r.httpClient.Do(req)
}

// State fetches the item's state.
func (r *REST) State(ctx context.Context, name string) (string, error) {
	resp, err := r.request(ctx, http.MethodGet, r.url(name, "/state"), nil)
	if err != nil {
		return "", fmt.Errorf("failed to get state of %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrUnknownItem, name)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get state of %s: status %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read state of %s: %w", name, err)
	}
	return string(data), nil
}

// SendCommand posts value as a command to the item.
func (r *REST) SendCommand(ctx context.Context, name, value string) error {
	resp, err := r.request(ctx, http.MethodPost, r.url(name, ""), strings.NewReader(value))
	if err != nil {
		return fmt.Errorf("failed to send command to %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownItem, name)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send command to %s: status %d: %s", name, resp.StatusCode, string(body))
	}

	log.Debug().Str("item", name).Str("value", value).Msg("Sent item command")
	return nil
}

// SendCommandIfDifferent sends value unless the item already has it.
func (r *REST) SendCommandIfDifferent(ctx context.Context, name, value string) (bool, error) {
	return sendIfDifferent(ctx, r, name, value)
}
