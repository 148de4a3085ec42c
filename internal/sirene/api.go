package sirene

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/fetcher"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/progress"
)

// Options tune the paginated API strategy.
type Options struct {
	PageSize  int           // per_page, capped upstream at 25
	PageDelay time.Duration // inter-page pause toward the rate limit
	HardCap   int           // upstream result ceiling, warn when reached
}

// maxPageSize is the per_page ceiling the search API enforces.
const maxPageSize = 25

// APIClient ingests establishments from the recherche-entreprises search
// API, one page at a time. Accumulation is all-or-nothing: a failed page
// discards everything gathered so far.
type APIClient struct {
	baseURL string
	http    fetcher.Fetcher
	engine  geomeng.Engine
	opts    Options
}

// NewAPIClient creates an APIClient against the given search base URL.
func NewAPIClient(baseURL string, httpFetcher fetcher.Fetcher, engine geomeng.Engine, opts Options) *APIClient {
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.HardCap <= 0 {
		opts.HardCap = 10000
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpFetcher,
		engine:  engine,
		opts:    opts,
	}
}

type searchResponse struct {
	TotalResults int `json:"total_results"`
	TotalPages   int `json:"total_pages"`
	Results      []struct {
		NomComplet             string             `json:"nom_complet"`
		MatchingEtablissements []rawEstablishment `json:"matching_etablissements"`
	} `json:"results"`
}

type rawEstablishment struct {
	Siret              string `json:"siret"`
	EtatAdministratif  string `json:"etat_administratif"`
	Latitude           string `json:"latitude"`
	Longitude          string `json:"longitude"`
	ActivitePrincipale string `json:"activite_principale"`
	Adresse            string `json:"adresse"`
}

// Ingest pages through the search API for the commune and returns the
// reprojected, clipped establishment layer. Returns nil when nothing
// survives filtering, on cancellation, or on any page failure.
func (c *APIClient) Ingest(ctx context.Context, insee string, boundary *layer.Layer, rep progress.Reporter) *layer.Layer {
	log := zap.L().With(zap.String("component", "sirene.api"), zap.String("insee", insee))

	pts := layer.New(LayerName, layer.KindPoint, geomeng.SRIDWGS84)
	dropped := 0
	totalPages := 1

	for page := 1; page <= totalPages; page++ {
		if rep.Cancelled() || ctx.Err() != nil {
			rep.Info("establishment ingestion cancelled")
			return nil
		}
		if page > 1 {
			if !sleepCtx(ctx, c.opts.PageDelay) {
				rep.Info("establishment ingestion cancelled")
				return nil
			}
		}

		sr, err := c.fetchPage(ctx, insee, page)
		if err != nil {
			rep.Warn(fmt.Sprintf("establishment search failed on page %d: %v — registry layer skipped", page, err))
			return nil
		}

		if page == 1 {
			totalPages = sr.TotalPages
			rep.Info(fmt.Sprintf("registry search: %d result(s) over %d page(s)", sr.TotalResults, sr.TotalPages))
			if sr.TotalResults >= c.opts.HardCap {
				rep.Warn(fmt.Sprintf("registry search hit the %d-result ceiling, establishments will be truncated", c.opts.HardCap))
			}
		}

		for _, company := range sr.Results {
			for _, est := range company.MatchingEtablissements {
				if est.EtatAdministratif != "A" {
					continue
				}
				lon, lat, ok := parseCoords(est.Longitude, est.Latitude)
				if !ok {
					dropped++
					continue
				}
				pts.Append(
					geom.NewPointFlat(geom.XY, []float64{lon, lat}),
					map[string]string{
						"siret":    est.Siret,
						"nom":      company.NomComplet,
						"activite": est.ActivitePrincipale,
						"adresse":  est.Adresse,
					},
				)
			}
		}
	}

	if dropped > 0 {
		log.Debug("dropped establishments without parseable coordinates", zap.Int("dropped", dropped))
	}
	rep.Info(fmt.Sprintf("%d active establishment(s) with coordinates", pts.Count()))

	return finishLayer(c.engine, pts, boundary, rep)
}

func (c *APIClient) fetchPage(ctx context.Context, insee string, page int) (*searchResponse, error) {
	params := url.Values{
		"code_commune": {insee},
		"per_page":     {strconv.Itoa(c.opts.PageSize)},
		"page":         {strconv.Itoa(page)},
	}
	data, err := c.http.Get(ctx, c.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, err
	}
	return &sr, nil
}

// parseCoords requires both fields present and numeric.
func parseCoords(lonStr, latStr string) (lon, lat float64, ok bool) {
	if lonStr == "" || latStr == "" {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lon, lat, true
}

// sleepCtx pauses for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
