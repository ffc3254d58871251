package tvmaze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public TVmaze API root.
const DefaultBaseURL = "https://api.tvmaze.com"

// Show is a TVmaze show record (the subset nextup consumes).
type Show struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Genres    []string `json:"genres"`
	Status    string   `json:"status"`
	Premiered string   `json:"premiered"`
	Summary   string   `json:"summary"`
	Image     *struct {
		Medium   string `json:"medium"`
		Original string `json:"original"`
	} `json:"image"`
	Externals struct {
		IMDB    string `json:"imdb"`
		TheTVDB int    `json:"thetvdb"`
	} `json:"externals"`
}

// ImageURL returns the best available artwork URL, or "".
func (s Show) ImageURL() string {
	if s.Image == nil {
		return ""
	}
	if s.Image.Medium != "" {
		return s.Image.Medium
	}
	return s.Image.Original
}

// Episode is a TVmaze episode record. Airstamp stays a string on the wire;
// use AirTime to parse it.
type Episode struct {
	ID       int    `json:"id"`
	Season   int    `json:"season"`
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Airstamp string `json:"airstamp"`
}

// AirTime parses the episode's airstamp. ok is false when the stamp is
// missing or unparsable.
func (e Episode) AirTime() (time.Time, bool) {
	if strings.TrimSpace(e.Airstamp) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, e.Airstamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SearchResult is one ranked hit from the search endpoint.
type SearchResult struct {
	Score float64 `json:"score"`
	Show  Show    `json:"show"`
}

// Client is a minimal TVmaze API client (search, show detail, episode list,
// IMDb lookup).
type Client struct {
	baseURL string
	httpc   *http.Client
	cache   *fileCache
}

// NewClient creates a TVmaze client. baseURL "" selects the public API;
// cacheDir "" disables the on-disk response cache.
func NewClient(baseURL, cacheDir string, cacheTTLHours int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	var cache *fileCache
	if cacheDir != "" {
		cache = newFileCache(cacheDir, cacheTTLHours)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		cache:   cache,
	}
}

// SearchShows returns ranked search hits for the query. An empty result is
// not an error.
func (c *Client) SearchShows(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("q", query)
	var results []SearchResult
	if err := c.doGET(ctx, "/search/shows", q, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ShowByID fetches full show metadata. Unknown ids return (nil, nil).
func (c *Client) ShowByID(ctx context.Context, id string) (*Show, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return nil, nil
	}

	cacheKey := "show_" + id
	if c.cache != nil {
		var cached Show
		if hit, _ := c.cache.get(cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	var show Show
	err := c.doGET(ctx, "/shows/"+id, nil, &show)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		// A failed cache write only costs a refetch.
		_ = c.cache.set(cacheKey, show)
	}
	return &show, nil
}

// Episodes fetches the full episode list for a show. Unknown ids return an
// empty list.
func (c *Client) Episodes(ctx context.Context, id string) ([]Episode, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return nil, nil
	}

	var episodes []Episode
	err := c.doGET(ctx, "/shows/"+id+"/episodes", nil, &episodes)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

// LookupByIMDB resolves an IMDb id (tt...) to a TVmaze show, or (nil, nil)
// when TVmaze doesn't know it.
func (c *Client) LookupByIMDB(ctx context.Context, imdbID string) (*Show, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("imdb", imdbID)
	var show Show
	err := c.doGET(ctx, "/lookup/shows", q, &show)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &show, nil
}

var errNotFound = errors.New("tvmaze: not found")

func (c *Client) doGET(ctx context.Context, path string, q url.Values, v any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}

	var lastErr error
	backoff := 300 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return errNotFound
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			lastErr = fmt.Errorf("tvmaze get %s failed: %s: %s", u, resp.Status, strings.TrimSpace(string(body)))
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					time.Sleep(time.Duration(secs) * time.Second)
					continue
				}
			}
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			return fmt.Errorf("tvmaze get %s failed: %s: %s", u, resp.Status, strings.TrimSpace(string(body)))
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		return err
	}
	return lastErr
}
