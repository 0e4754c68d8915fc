// Package gitlab is a minimal client for the GitLab v4 REST API, covering
// only the opened-merge-request listing this tool needs.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/opsnag/mr-nag/internal/apperr"
	"github.com/opsnag/mr-nag/internal/models"
)

const (
	perPage = 100
	// maxPages caps pagination so a misbehaving API cannot keep the
	// process alive forever; 5000 open MRs is well past any sane project.
	maxPages = 50
)

// HTTPClient is the slice of http.Client the client needs; tests substitute
// a double.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one GitLab instance.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	log        *zap.Logger
}

// NewClient returns a client for the instance at baseURL (scheme included),
// authenticating every request with token.
func NewClient(baseURL, token string, httpClient HTTPClient, log *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		log:        log,
	}
}

// mergeRequest is the wire shape of one merge request; only the fields this
// tool reads are declared.
type mergeRequest struct {
	ID           int64     `json:"id"`
	IID          int64     `json:"iid"`
	Title        string    `json:"title"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	WebURL       string    `json:"web_url"`
	UpdatedAt    time.Time `json:"updated_at"`
	Author       struct {
		Name string `json:"name"`
	} `json:"author"`
}

// OpenMergeRequests lists every opened merge request of the project, in API
// order, following X-Next-Page pagination until exhausted.
func (c *Client) OpenMergeRequests(ctx context.Context, projectID int64) ([]models.MergeRequest, error) {
	var all []models.MergeRequest
	page := 1
	for fetched := 0; ; fetched++ {
		if fetched >= maxPages {
			return nil, apperr.New(apperr.KindAPI,
				"merge request listing did not terminate after %d pages", maxPages)
		}

		batch, next, err := c.fetchPage(ctx, projectID, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		if next <= 0 {
			return all, nil
		}
		page = next
	}
}

// fetchPage retrieves one page and returns the records plus the next page
// number, 0 when this was the last page.
func (c *Client) fetchPage(ctx context.Context, projectID int64, page int) ([]models.MergeRequest, int, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/merge_requests?state=opened&per_page=%d&page=%d",
		c.baseURL, projectID, perPage, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindNetwork, err, "building merge request listing request")
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("fetching merge requests", zap.Int64("project", projectID), zap.Int("page", page))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindNetwork, err, "listing merge requests")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, apperr.New(apperr.KindAuth,
			"gitlab rejected the token with status %d: %s", resp.StatusCode, readBody(resp.Body))
	case resp.StatusCode != http.StatusOK:
		return nil, 0, apperr.New(apperr.KindAPI,
			"gitlab returned status %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var wire []mergeRequest
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindDecode, err, "decoding merge request page %d", page)
	}

	batch := make([]models.MergeRequest, len(wire))
	for i, mr := range wire {
		batch[i] = models.MergeRequest{
			ID:           mr.ID,
			IID:          mr.IID,
			Title:        mr.Title,
			Author:       mr.Author.Name,
			SourceBranch: mr.SourceBranch,
			TargetBranch: mr.TargetBranch,
			WebURL:       mr.WebURL,
			UpdatedAt:    mr.UpdatedAt,
		}
	}

	next, err := nextPage(resp.Header)
	if err != nil {
		return nil, 0, err
	}
	return batch, next, nil
}

// nextPage reads GitLab's X-Next-Page header; it is empty on the last page.
// A value that is present but unparseable would silently truncate the result
// set, so it is reported as a decode failure instead.
func nextPage(h http.Header) (int, error) {
	v := h.Get("X-Next-Page")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDecode, err, "parsing X-Next-Page header %q", v)
	}
	return n, nil
}

// readBody returns a truncated copy of the response body for diagnostics.
func readBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(body)
}
