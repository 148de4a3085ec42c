package commune

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Resolver looks up communes by partial name. Lookup failures are fatal by
// contract: no retry is attempted.
type Resolver struct {
	baseURL string
	client  *http.Client
	choose  ChooseFunc
}

// NewResolver creates a Resolver against the given lookup base URL.
func NewResolver(baseURL string, timeout time.Duration, choose ChooseFunc) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		choose:  choose,
	}
}

// Resolve finds the unique commune for a name query. Zero matches yields
// ErrNotFound; several matches are put to the choose callback exactly once,
// and a nil choice yields ErrCancelled.
func (r *Resolver) Resolve(ctx context.Context, nameQuery string) (*Commune, error) {
	candidates, err := r.Search(ctx, nameQuery)
	if err != nil {
		return nil, err
	}

	switch len(candidates) {
	case 0:
		return nil, eris.Wrapf(ErrNotFound, "commune: no commune matches %q", nameQuery)
	case 1:
		return &candidates[0], nil
	}

	zap.L().Info("several communes match, asking for a choice",
		zap.String("query", nameQuery),
		zap.Int("candidates", len(candidates)),
	)
	if r.choose == nil {
		return nil, ErrCancelled
	}
	picked := r.choose(candidates)
	if picked == nil {
		return nil, ErrCancelled
	}
	return picked, nil
}

// Search returns all communes matching the name query, boundary included.
// Candidates whose folded name equals the folded query sort first, then
// folded-prefix matches, then alphabetical order.
func (r *Resolver) Search(ctx context.Context, nameQuery string) ([]Commune, error) {
	params := url.Values{
		"nom":      {nameQuery},
		"fields":   {"nom,code,contour"},
		"format":   {"geojson"},
		"geometry": {"contour"},
	}
	reqURL := fmt.Sprintf("%s/communes?%s", r.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "commune: build lookup request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "commune: lookup %q: %v", nameQuery, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "commune: lookup %q: status %d", nameQuery, resp.StatusCode)
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "commune: lookup %q: decode response: %v", nameQuery, err)
	}

	candidates := make([]Commune, 0, len(fc.Features))
	for _, f := range fc.Features {
		name, _ := f.Properties["nom"].(string)
		code, _ := f.Properties["code"].(string)
		if name == "" || code == "" || f.Geometry == nil {
			continue
		}
		candidates = append(candidates, Commune{Name: name, Code: code, Contour: f.Geometry})
	}

	sortCandidates(candidates, nameQuery)
	return candidates, nil
}

func sortCandidates(candidates []Commune, query string) {
	q := Fold(query)
	rank := func(c Commune) int {
		folded := Fold(c.Name)
		switch {
		case folded == q:
			return 0
		case strings.HasPrefix(folded, q):
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i]), rank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		if candidates[i].Name != candidates[j].Name {
			return candidates[i].Name < candidates[j].Name
		}
		return candidates[i].Code < candidates[j].Code
	})
}
