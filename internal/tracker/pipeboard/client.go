package pipeboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowyard/flowyard/internal/tracker"
)

// errNotFound marks a 404 from the Pipeboard API.
var errNotFound = errors.New("pipeboard: not found")

// Card is the subset of a Pipeboard card the sync needs.
type Card struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	InitialPhase string `json:"initial_phase"`
}

// cardList is a page of the board's card listing.
type cardList struct {
	Cards   []Card `json:"cards"`
	Page    int    `json:"page"`
	HasMore bool   `json:"has_more"`
}

// phaseEventPage is one page of a card's phase-entry feed. Pipeboard only
// reports destinations: each event says which phase the card entered, never
// which it left.
type phaseEventPage struct {
	Events  []phaseEvent `json:"events"`
	Offset  int          `json:"offset"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
}

type phaseEvent struct {
	PhaseName string `json:"phase_name"`
	MovedAt   string `json:"moved_at"`
	MovedBy   struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"moved_by"`
}

// Client provides HTTP access to a Pipeboard instance.
type Client struct {
	URL        string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a new Pipeboard client.
func NewClient(rawURL, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(rawURL, "/"),
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListCards returns the ids of cards on a board, handling pagination.
// since narrows to cards moved after that time; limit of 0 means no cap.
func (c *Client) ListCards(ctx context.Context, boardID string, since *time.Time, limit int) ([]string, error) {
	var ids []string
	page := 1

	for {
		params := url.Values{"page": {fmt.Sprintf("%d", page)}}
		if since != nil {
			params.Set("moved_since", since.UTC().Format(time.RFC3339))
		}
		apiURL := fmt.Sprintf("%s/api/v1/boards/%s/cards?%s", c.URL, url.PathEscape(boardID), params.Encode())

		body, err := c.doRequest(ctx, apiURL)
		if err != nil {
			return nil, tracker.Transport("list cards", err)
		}

		var result cardList
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse card list: %w", err)
		}

		for i := range result.Cards {
			ids = append(ids, result.Cards[i].ID)
			if limit > 0 && len(ids) >= limit {
				return ids, nil
			}
		}

		if !result.HasMore || len(result.Cards) == 0 {
			return ids, nil
		}
		page++
	}
}

// GetCard fetches a single card. A 404 returns errNotFound.
func (c *Client) GetCard(ctx context.Context, cardID string) (*Card, error) {
	apiURL := fmt.Sprintf("%s/api/v1/cards/%s", c.URL, url.PathEscape(cardID))

	body, err := c.doRequest(ctx, apiURL)
	if errors.Is(err, errNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, tracker.Transport(fmt.Sprintf("get card %s", cardID), err)
	}

	var card Card
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("parse card response: %w", err)
	}
	return &card, nil
}

// GetPhaseEvents fetches one page of a card's phase-entry feed. A 404
// returns errNotFound.
func (c *Client) GetPhaseEvents(ctx context.Context, cardID string, offset, limit int) (*phaseEventPage, error) {
	params := url.Values{
		"offset": {fmt.Sprintf("%d", offset)},
		"limit":  {fmt.Sprintf("%d", limit)},
	}
	apiURL := fmt.Sprintf("%s/api/v1/cards/%s/phase_events?%s", c.URL, url.PathEscape(cardID), params.Encode())

	body, err := c.doRequest(ctx, apiURL)
	if errors.Is(err, errNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, tracker.Transport(fmt.Sprintf("fetch phase events %s offset %d", cardID, offset), err)
	}

	var page phaseEventPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parse phase events: %w", err)
	}
	return &page, nil
}

func (c *Client) doRequest(ctx context.Context, apiURL string) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("pipeboard URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("pipeboard API token not configured")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "flowyard-sync/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pipeboard API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
