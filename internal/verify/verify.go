// Package verify wraps the external face-match verification service. The
// service itself is opaque; this package only normalizes its loosely
// shaped response into an approved-or-not outcome plus a display message.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

const httpTimeout = 30 * time.Second

var similarityScore = regexp.MustCompile(`Similarity Score: ([\d.]+)`)

// Outcome is the normalized verification result.
type Outcome struct {
	Approved   bool    `json:"approved"`
	Message    string  `json:"message"`
	Similarity float64 `json:"similarity"` // percent, two decimals
	Model      string  `json:"model"`
	Verified   bool    `json:"verified"`
}

// response mirrors the fields the verification service has been observed
// to return. Everything is optional; unknown fields are ignored.
type response struct {
	Verified *bool    `json:"verified"`
	Approved *bool    `json:"approved"`
	Status   string   `json:"status"`
	Match    *bool    `json:"match"`
	Message  string   `json:"message"`
	Distance *float64 `json:"distance"`
	Model    string   `json:"model"`
}

// Client calls the verification endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a verification client. An empty endpoint disables
// verification: Verify then fails with an explicit error rather than
// silently approving.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Request carries the subject identity and the captured photo reference
// to check it against.
type Request struct {
	CardNumber string `json:"card_number"`
	NationalID string `json:"national_id,omitempty"`
	PhotoRef   string `json:"photo_ref"`
}

// Verify posts the request and normalizes whatever comes back.
func (c *Client) Verify(ctx context.Context, vr Request) (*Outcome, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("verify: no endpoint configured")
	}

	body, err := json.Marshal(vr)
	if err != nil {
		return nil, fmt.Errorf("verify: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("verify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("verify: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("verify: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("verify: service responded %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("verify: decode response: %w", err)
	}
	return normalize(&r), nil
}

// normalize maps the service's response shape onto an Outcome. Approval
// accepts any of the indicator fields the service is known to use.
func normalize(r *response) *Outcome {
	approved := boolVal(r.Verified) || boolVal(r.Approved) || r.Status == "approved" || boolVal(r.Match)

	var similarity float64
	if m := similarityScore.FindStringSubmatch(r.Message); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			similarity = v
		}
	} else if r.Distance != nil {
		similarity = math.Max(0, 1-*r.Distance)
	}

	msg := r.Message
	if msg == "" {
		if approved {
			msg = "verification succeeded"
		} else {
			msg = "verification failed"
		}
	}

	model := r.Model
	if model == "" {
		model = "N/A"
	}

	return &Outcome{
		Approved:   approved,
		Message:    msg,
		Similarity: math.Round(similarity*10000) / 100,
		Model:      model,
		Verified:   boolVal(r.Verified),
	}
}

func boolVal(b *bool) bool {
	return b != nil && *b
}
