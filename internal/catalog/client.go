package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/forest-guardian/sentinel-mosaic/internal/properties"
)

const (
	catalogueURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products"
	downloadURL  = "https://zipper.dataspace.copernicus.eu/odata/v1/Products(%s)/$value"

	downloadRetries = 10
	retryDelay      = 5 * time.Second
)

// Product is one catalogue entry returned by a search.
type Product struct {
	Id            string    `json:"Id"`
	Name          string    `json:"Name"`
	ContentLength int64     `json:"ContentLength"`
	OriginDate    time.Time `json:"OriginDate"`
	Online        bool      `json:"Online"`
}

type searchResponse struct {
	Value    []Product `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// Query describes a catalogue search for Sentinel-2 products.
type Query struct {
	Tile     string // e.g. 36MYE
	Level    string // 1C or 2A
	Start    time.Time
	End      time.Time
	MaxCloud float64 // percent; 0 disables the filter
}

// Client talks to the Copernicus Data Space catalogue and download
// endpoints. The zero value is not usable; construct with NewClient.
type Client struct {
	http *http.Client
}

// NewClient authenticates with the client credentials from the
// environment. The returned client refreshes its token automatically.
func NewClient(ctx context.Context) (*Client, error) {
	clientID := properties.CopernicusClientID()
	clientSecret := properties.CopernicusClientSecret()
	tokenURL := properties.CopernicusTokenURL()
	if clientID == "" || clientSecret == "" || tokenURL == "" {
		return nil, fmt.Errorf("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
	}

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	return &Client{http: config.Client(ctx)}, nil
}

// Search lists every product matching the query, following pagination
// until the catalogue is exhausted.
func (c *Client) Search(ctx context.Context, q Query) ([]Product, error) {
	if q.Tile == "" {
		return nil, fmt.Errorf("a tile is required to search the catalogue")
	}
	level := q.Level
	if level == "" {
		level = "2A"
	}

	filters := []string{
		"Collection/Name eq 'SENTINEL-2'",
		fmt.Sprintf("contains(Name,'MSIL%s')", level),
		fmt.Sprintf("contains(Name,'T%s')", strings.TrimPrefix(q.Tile, "T")),
		fmt.Sprintf("ContentDate/Start ge %s", q.Start.UTC().Format("2006-01-02T15:04:05.000Z")),
		fmt.Sprintf("ContentDate/Start lt %s", q.End.UTC().Format("2006-01-02T15:04:05.000Z")),
	}
	if q.MaxCloud > 0 {
		filters = append(filters, fmt.Sprintf(
			"Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le %.2f)",
			q.MaxCloud))
	}

	next := catalogueURL + "?$filter=" + url.QueryEscape(strings.Join(filters, " and ")) + "&$orderby=ContentDate/Start asc&$top=100"

	var products []Product
	for next != "" {
		page, err := c.searchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		products = append(products, page.Value...)
		next = page.NextLink
	}

	return products, nil
}

func (c *Client) searchPage(ctx context.Context, pageURL string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalogue request: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalogue: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalogue returned status %d: %s", resp.StatusCode, string(body))
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue response: %v", err)
	}
	return &page, nil
}

// Download fetches one product archive into destDir and extracts it,
// returning the path of the extracted .SAFE directory. A product already
// present on disk is not fetched again.
func (c *Client) Download(ctx context.Context, p Product, destDir string) (string, error) {
	safePath := filepath.Join(destDir, p.Name)
	if _, err := os.Stat(safePath); err == nil {
		fmt.Printf("%s already present, skipping download\n", p.Name)
		return safePath, nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %v", err)
	}

	archivePath := filepath.Join(destDir, strings.TrimSuffix(p.Name, ".SAFE")+".zip")

	var err error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return "", err
		}

		err = c.downloadArchive(ctx, p, archivePath)
		if err == nil {
			break
		}
		fmt.Printf("Attempt %d failed: %v\n", attempt, err)
		time.Sleep(retryDelay)
	}
	if err != nil {
		return "", fmt.Errorf("failed to download %s after %d attempts: %v", p.Name, downloadRetries, err)
	}

	if err := extractArchive(archivePath, destDir); err != nil {
		return "", err
	}
	os.Remove(archivePath)

	if _, err := os.Stat(safePath); err != nil {
		return "", fmt.Errorf("archive for %s did not contain the expected .SAFE directory", p.Name)
	}
	return safePath, nil
}

func (c *Client) downloadArchive(ctx context.Context, p Product, archivePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(downloadURL, p.Id), nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request product: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("download returned status %d: %s", resp.StatusCode, string(body))
	}

	tmpPath := archivePath + ".part"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", tmpPath, err)
	}

	bar := progressbar.DefaultBytes(resp.ContentLength, fmt.Sprintf("Downloading %s", p.Name))
	_, err = io.Copy(io.MultiWriter(f, bar), resp.Body)
	f.Close()
	fmt.Println()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to download archive: %v", err)
	}

	return os.Rename(tmpPath, archivePath)
}
