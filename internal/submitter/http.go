package submitter

import (
	"context"
	"fmt"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

// HTTP is the cookie-authenticated JSON submission adapter used by game
// servers that expose a single POST endpoint taking a flag list and
// returning one status per flag.
type HTTP struct {
	client fastshot.ClientHttpMethods
	path   string
}

type submitRequest struct {
	Flags []string `json:"flags"`
}

type submitResponseEntry struct {
	Flag   string `json:"flag"`
	Status string `json:"status"`
}

type submitResponse struct {
	Results []submitResponseEntry `json:"results"`
}

// NewHTTP builds an HTTP adapter against baseURL+path, authenticating
// with the given session cookie.
func NewHTTP(baseURL, path, cookieName, cookieValue string, timeout time.Duration) *HTTP {
	client := fastshot.NewClient(baseURL).
		Config().SetTimeout(timeout).
		Auth().Set(fmt.Sprintf("%s=%s", cookieName, cookieValue)).
		Build()
	return &HTTP{client: client, path: path}
}

func (h *HTTP) Submit(ctx context.Context, flags []string) ([]Result, error) {
	resp, err := h.client.POST(h.path).
		Context().Set(ctx).
		Body().AsJSON(submitRequest{Flags: flags}).
		Send()
	if err != nil {
		return nil, fmt.Errorf("submit flags over http: %w", err)
	}
	if !resp.Status().Is2xx() {
		return nil, fmt.Errorf("submit flags: upstream returned status %d", resp.StatusCode())
	}

	var body submitResponse
	if err := resp.Body().AsJSON(&body); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}

	byFlag := make(map[string]string, len(body.Results))
	for _, e := range body.Results {
		byFlag[e.Flag] = e.Status
	}

	results := make([]Result, 0, len(flags))
	for _, f := range flags {
		status, ok := byFlag[f]
		if !ok || !model.KnownStatus(status) {
			status = model.StatusERR
		}
		results = append(results, Result{Text: f, Status: status})
	}
	return results, nil
}
