// Package prices queries the SISMED price registry (datos.gov.co Socrata dataset).
package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://www.datos.gov.co/resource/3he6-m866.json"
	// DefaultLimit bounds price queries when the caller does not care.
	DefaultLimit = 50
)

// Record is one historical price observation for a registry entry.
// SISMED data is historical reference data, not current market prices.
type Record struct {
	ExpedienteCUM        string
	DescripcionComercial string
	FormaFarmaceutica    string
	ATC                  string
	DescripcionATC       string
	PrecioMinimo         float64
	PrecioMaximo         float64
	PrecioPromedio       float64
	Unidades             float64
	FechaCorte           string
	TipoReporte          string
	TipoEntidad          string
}

// Summary aggregates a set of price records.
type Summary struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Avg          float64 `json:"avg"`
	FechaDatos   string  `json:"fecha_datos"`
	NumRegistros int     `json:"num_registros"`
}

// Source is the price query surface consumed by enrichment.
type Source interface {
	PricesByExpediente(ctx context.Context, expedienteCUM string, limit int) ([]Record, error)
}

// Client queries the public dataset over HTTP.
type Client struct {
	baseURL    string
	appToken   string
	httpClient *http.Client
}

// NewClient constructs a price client. An empty baseURL selects the
// public dataset endpoint.
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

// PricesByExpediente returns price records for one registry linkage key,
// most recent first. Zero-average-price rows are dropped at decode.
func (c *Client) PricesByExpediente(ctx context.Context, expedienteCUM string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("expedientecum", expedienteCUM)
	params.Set("$limit", strconv.Itoa(limit))
	params.Set("$order", "fechacorte DESC")
	return c.query(ctx, params)
}

// PricesByATC searches price records by WHO ATC classification code.
func (c *Client) PricesByATC(ctx context.Context, atcCode string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("atc", strings.ToUpper(atcCode))
	params.Set("$limit", strconv.Itoa(limit))
	params.Set("$order", "fechacorte DESC")
	return c.query(ctx, params)
}

// Summarize reduces price records to a range summary: min of positive
// minima, max of maxima, mean of averages, most recent cutoff date.
// Returns nil for empty input.
func Summarize(records []Record) *Summary {
	if len(records) == 0 {
		return nil
	}

	summary := &Summary{NumRegistros: len(records)}
	sumAvg := 0.0
	for _, r := range records {
		if r.PrecioMinimo > 0 && (summary.Min == 0 || r.PrecioMinimo < summary.Min) {
			summary.Min = r.PrecioMinimo
		}
		if r.PrecioMaximo > summary.Max {
			summary.Max = r.PrecioMaximo
		}
		sumAvg += r.PrecioPromedio
		if r.FechaCorte > summary.FechaDatos {
			summary.FechaDatos = r.FechaCorte
		}
	}
	summary.Avg = sumAvg / float64(len(records))
	return summary
}

type priceRow struct {
	ExpedienteCUM        string `json:"expedientecum"`
	DescripcionComercial string `json:"descripcioncomercial"`
	FormaFarmaceutica    string `json:"formafarmaceutica"`
	ATC                  string `json:"atc"`
	DescripcionATC       string `json:"descripcion_atc"`
	ValorMinimo          string `json:"valorminimo"`
	ValorMaximo          string `json:"valormaximo"`
	ValorPromedio        string `json:"valorpromedio"`
	Unidades             string `json:"unidades"`
	FechaCorte           string `json:"fechacorte"`
	TipoReporte          string `json:"tiporeportepreciodesc"`
	TipoEntidad          string `json:"tipoentidaddesc"`
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
			return nil, fmt.Errorf("sismed request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sismed query status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var rows []priceRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("sismed response parse: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		avg := parsePrice(row.ValorPromedio)
		if avg == 0 {
			// Zero-price rows reflect no actual transactions.
			continue
		}
		records = append(records, Record{
			ExpedienteCUM:        row.ExpedienteCUM,
			DescripcionComercial: row.DescripcionComercial,
			FormaFarmaceutica:    row.FormaFarmaceutica,
			ATC:                  row.ATC,
			DescripcionATC:       row.DescripcionATC,
			PrecioMinimo:         parsePrice(row.ValorMinimo),
			PrecioMaximo:         parsePrice(row.ValorMaximo),
			PrecioPromedio:       avg,
			Unidades:             parsePrice(row.Unidades),
			FechaCorte:           row.FechaCorte,
			TipoReporte:          row.TipoReporte,
			TipoEntidad:          row.TipoEntidad,
		})
	}
	return records, nil
}

func parsePrice(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return val
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
