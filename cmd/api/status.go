package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/FACorreiaa/fastener-match/pkg/httpx"
)

type serverStatus struct {
	GoVersion string `json:"go_version"`
	System    string `json:"system"`
	Node      string `json:"node"`
}

type extractionStatus struct {
	Configured bool   `json:"configured"`
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
}

type catalogStatus struct {
	Source          string `json:"source"`
	Path            string `json:"path"`
	Products        int    `json:"products"`
	IndexedProducts uint64 `json:"indexed_products"`
	SyncSchedule    string `json:"sync_schedule,omitempty"`
}

type databaseStatus struct {
	Address    string `json:"address"`
	Connection string `json:"connection"`
	Version    string `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StatusResponse is the body of GET /api/debug/status
type StatusResponse struct {
	Server     serverStatus     `json:"server"`
	Extraction extractionStatus `json:"extraction"`
	Catalog    catalogStatus    `json:"catalog"`
	Database   databaseStatus   `json:"database"`
}

func debugStatus(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _ := os.Hostname()
		dbCfg := d.Config.Database

		resp := StatusResponse{
			Server: serverStatus{
				GoVersion: runtime.Version(),
				System:    runtime.GOOS + "/" + runtime.GOARCH,
				Node:      host,
			},
			Extraction: extractionStatus{
				Configured: d.Extractor.Configured(),
				BaseURL:    d.Config.Extraction.BaseURL,
				Model:      d.Config.Extraction.Model,
			},
			Catalog: catalogStatus{
				Source:       d.Config.Catalog.Source,
				Path:         d.Config.Catalog.Path,
				Products:     d.CatalogService.Size(),
				SyncSchedule: d.Config.Catalog.SyncSchedule,
			},
			// credentials stay out of the response
			Database: databaseStatus{
				Address:    fmt.Sprintf("%s:%d/%s", dbCfg.Host, dbCfg.Port, dbCfg.Database),
				Connection: "OK",
			},
		}

		if d.SearchIndex != nil {
			if n, err := d.SearchIndex.DocumentCount(); err == nil {
				resp.Catalog.IndexedProducts = n
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := d.DB.Pool.QueryRow(ctx, "SELECT version()").Scan(&resp.Database.Version); err != nil {
			resp.Database.Connection = "ERROR"
			resp.Database.Error = err.Error()
		}

		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}
