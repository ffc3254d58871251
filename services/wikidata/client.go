package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultEndpoint is the public Wikidata SPARQL endpoint.
const DefaultEndpoint = "https://query.wikidata.org/sparql"

// Wikidata "instance of" classes per content type.
var typeClasses = map[string]string{
	"tv":     "Q5398426",  // television series
	"anime":  "Q63952888", // anime television series
	"movies": "Q11424",    // film
}

// CrossReference is one genre-query hit: a catalog item plus whatever
// external ids Wikidata knows for it. ExternalID carries the wd- prefix used
// throughout the watchlist to mark items with no direct refresh source.
type CrossReference struct {
	ExternalID string `json:"externalId"` // wd-Q…
	Name       string `json:"name"`
	IMDBID     string `json:"imdbId,omitempty"`
	TVMazeID   string `json:"tvmazeId,omitempty"`
}

// Client queries Wikidata's SPARQL endpoint for genre cross-references.
type Client struct {
	endpoint string
	httpc    *http.Client
}

// NewClient creates a Wikidata client. endpoint "" selects the public one.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

// sparqlResponse is the subset of the SPARQL JSON result format we read.
type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// QueryByGenre returns up to limit items of the given genre and content
// types, each with IMDb (P345) and TVmaze (P8600) ids where known.
func (c *Client) QueryByGenre(ctx context.Context, genre string, types []string, limit int) ([]CrossReference, error) {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	classes := make([]string, 0, len(types))
	for _, t := range types {
		if class, ok := typeClasses[t]; ok {
			classes = append(classes, "wd:"+class)
		}
	}
	if len(classes) == 0 {
		classes = []string{"wd:" + typeClasses["tv"]}
	}

	query := fmt.Sprintf(`SELECT DISTINCT ?item ?itemLabel ?imdb ?tvmaze WHERE {
  VALUES ?class { %s }
  ?item wdt:P31 ?class .
  ?item wdt:P136 ?genreItem .
  ?genreItem rdfs:label %q@en .
  OPTIONAL { ?item wdt:P345 ?imdb . }
  OPTIONAL { ?item wdt:P8600 ?tvmaze . }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT %d`, strings.Join(classes, " "), strings.ToLower(genre), limit)

	q := url.Values{}
	q.Set("query", query)
	q.Set("format", "json")

	var parsed sparqlResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/sparql-results+json")
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return fmt.Errorf("wikidata query failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return retry.Unrecoverable(fmt.Errorf("wikidata query failed: %s: %s", resp.Status, strings.TrimSpace(string(body))))
			}
			return json.NewDecoder(resp.Body).Decode(&parsed)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	refs := make([]CrossReference, 0, len(parsed.Results.Bindings))
	for _, b := range parsed.Results.Bindings {
		item, ok := b["item"]
		if !ok {
			continue
		}
		qid := item.Value
		if idx := strings.LastIndex(qid, "/"); idx >= 0 {
			qid = qid[idx+1:]
		}
		if qid == "" {
			continue
		}
		ref := CrossReference{ExternalID: "wd-" + qid}
		if label, ok := b["itemLabel"]; ok {
			ref.Name = label.Value
		}
		if imdb, ok := b["imdb"]; ok {
			ref.IMDBID = imdb.Value
		}
		if tvmaze, ok := b["tvmaze"]; ok {
			ref.TVMazeID = tvmaze.Value
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
