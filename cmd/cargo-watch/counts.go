package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
)

// restCounts запрашивает авторитетный счётчик у API, а не доверяет
// локальным инкрементам.
type restCounts struct {
	baseURL string
	httpc   *http.Client
}

func newRESTCounts(baseURL string) *restCounts {
	return &restCounts{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *restCounts) Count(ctx context.Context, ch models.Channel, userID uint64) (int, error) {
	url := fmt.Sprintf("%s/inbox/%s/unread-count?userId=%d", r.baseURL, ch, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "unread count request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("unread count: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Unread int `json:"unread"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(err, "decode unread count")
	}
	return body.Unread, nil
}
