// Package linkclient is an annotate.Linker that forwards documents to an
// external entity-linking service over HTTP.
package linkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cognicore/termset/pkg/termset/annotate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// DefaultOntology is the linker used when none is configured.
const DefaultOntology = "umls"

// Config describes the linking service.
type Config struct {
	BaseURL string
	// Ontology selects the knowledge base (umls, mesh, rxnorm, go, hpo).
	// It is forwarded to the service untouched.
	Ontology string
	APIKey   string
	Timeout  time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64

	HTTPClient *http.Client
}

// Client calls the linking service.
type Client struct {
	baseURL  string
	ontology string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
}

type annotateRequest struct {
	Text   string `json:"text"`
	Linker string `json:"linker"`
}

type kbEntity struct {
	ConceptID     string  `json:"concept_id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"`
}

type annotateResponse struct {
	Entities []struct {
		Text   string     `json:"text"`
		KBEnts []kbEntity `json:"kb_ents"`
	} `json:"entities"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Dial validates cfg and checks that the service has the requested
// ontology loaded. Any failure is a configuration error.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: linkclient: base URL required", internalerr.ErrConfiguration)
	}
	if cfg.Ontology == "" {
		cfg.Ontology = DefaultOntology
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		ontology: cfg.Ontology,
		apiKey:   cfg.APIKey,
		http:     cfg.HTTPClient,
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	if err := c.probe(ctx); err != nil {
		return nil, fmt.Errorf("%w: linkclient: ontology %q unavailable: %w", internalerr.ErrConfiguration, c.ontology, err)
	}
	return c, nil
}

// Ontology returns the configured knowledge base name.
func (c *Client) Ontology() string { return c.ontology }

func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/linkers/"+url.PathEscape(c.ontology), nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

// Link implements annotate.Linker.
func (c *Client) Link(ctx context.Context, text string) ([]annotate.Entity, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(annotateRequest{Text: text, Linker: c.ontology})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/annotate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("linkclient: decode response (status %s): %w", resp.Status, err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("linkclient: service error: %s", payload.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("linkclient: status %s", resp.Status)
	}

	out := make([]annotate.Entity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		ent := annotate.Entity{Text: e.Text, Candidates: make([]annotate.Candidate, 0, len(e.KBEnts))}
		for _, kb := range e.KBEnts {
			ent.Candidates = append(ent.Candidates, annotate.Candidate{
				ConceptID:     kb.ConceptID,
				CanonicalName: kb.CanonicalName,
				Score:         kb.Score,
			})
		}
		out = append(out, ent)
	}
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
