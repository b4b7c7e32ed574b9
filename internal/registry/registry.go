// Package registry queries the CUM drug registry (datos.gov.co Socrata dataset).
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://www.datos.gov.co/resource/i7cb-raxc.json"
	// DefaultLimit bounds registry queries when the caller does not care.
	DefaultLimit = 50
)

// Record is one CUM registry entry.
type Record struct {
	ExpedienteCUM        string `json:"expedientecum"`
	Producto             string `json:"producto"`
	PrincipioActivo      string `json:"principioactivo"`
	ConcentracionValor   string `json:"cantidad"`
	UnidadMedida         string `json:"unidadmedida"`
	FormaFarmaceutica    string `json:"formafarmaceutica"`
	Titular              string `json:"titular"`
	RegistroSanitario    string `json:"registrosanitario"`
	EstadoRegistro       string `json:"estadoregistro"`
	CantidadCUM          string `json:"cantidadcum"`
	DescripcionComercial string `json:"descripcioncomercial"`
}

// Searcher is the registry query surface consumed by matching and enrichment.
type Searcher interface {
	SearchByProductName(ctx context.Context, productName string, limit int) ([]Record, error)
	SearchByActiveIngredient(ctx context.Context, ingredient string, limit int, onlyActive bool) ([]Record, error)
	FindGenerics(ctx context.Context, ingredient, concentration string) ([]Record, error)
}

// Client queries the public dataset over HTTP.
type Client struct {
	baseURL    string
	appToken   string
	httpClient *http.Client
}

// NewClient constructs a registry client. An empty baseURL selects the
// public dataset endpoint; appToken is optional and raises rate limits.
func NewClient(baseURL, appToken string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	timeout := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("SOCRATA_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		baseURL:  baseURL,
		appToken: appToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SearchByProductName runs a full-text search over the dataset.
func (c *Client) SearchByProductName(ctx context.Context, productName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("$q", productName)
	params.Set("$limit", strconv.Itoa(limit))
	return c.query(ctx, params)
}

// SearchByActiveIngredient matches principioactivo exactly (uppercased).
// onlyActive restricts results to estadoregistro=Vigente.
func (c *Client) SearchByActiveIngredient(ctx context.Context, ingredient string, limit int, onlyActive bool) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("principioactivo", strings.ToUpper(ingredient))
	params.Set("$limit", strconv.Itoa(limit))
	if onlyActive {
		params.Set("estadoregistro", "Vigente")
	}
	return c.query(ctx, params)
}

// FindGenerics returns registry entries sharing the active ingredient,
// optionally filtered to a concentration value, generics sorted first.
func (c *Client) FindGenerics(ctx context.Context, ingredient, concentration string) ([]Record, error) {
	results, err := c.SearchByActiveIngredient(ctx, ingredient, 100, true)
	if err != nil {
		return nil, err
	}
	return RankGenerics(results, concentration), nil
}

// RankGenerics filters records to a concentration (when given) and sorts
// entries flagged GENERICO in their commercial description first.
func RankGenerics(records []Record, concentration string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if concentration != "" && r.ConcentracionValor != concentration {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		gi := IsGeneric(out[i])
		gj := IsGeneric(out[j])
		if gi != gj {
			return gi
		}
		return out[i].Producto < out[j].Producto
	})
	return out
}

// IsGeneric reports whether the record is flagged as a generic product.
func IsGeneric(r Record) bool {
	return strings.Contains(strings.ToUpper(r.DescripcionComercial), "GENERICO")
}

func (c *Client) query(ctx context.Context, params url.Values) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("cum request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cum query status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("cum response parse: %w", err)
	}
	return records, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
