// Package nominatim reverse-geocodes capture GPS coordinates into a display
// label and a nearby business name via the OSM Nominatim API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snaplens/snaplens/internal/meta"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements meta.Geocoder.
type Client struct {
	BaseURL string

	// UserAgent identifies the caller; Nominatim's usage policy requires one.
	UserAgent string

	HTTPClient *http.Client
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Address     struct {
		Amenity string `json:"amenity"`
		Shop    string `json:"shop"`
	} `json:"address"`
}

// Reverse resolves the coordinate twice: once for the display label and once
// at street zoom for the nearest business/amenity name. Absence of either is
// not an error.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (meta.Place, error) {
	label, err := c.lookup(ctx, lat, lon, 0)
	if err != nil {
		return meta.Place{}, err
	}
	business, err := c.lookup(ctx, lat, lon, 18)
	if err != nil {
		return meta.Place{}, err
	}

	place := meta.Place{DisplayName: label.DisplayName}
	switch {
	case strings.TrimSpace(business.Name) != "":
		place.Business = business.Name
	case strings.TrimSpace(business.Address.Amenity) != "":
		place.Business = business.Address.Amenity
	case strings.TrimSpace(business.Address.Shop) != "":
		place.Business = business.Address.Shop
	}
	return place, nil
}

func (c *Client) lookup(ctx context.Context, lat, lon float64, zoom int) (reverseResponse, error) {
	base := c.BaseURL
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseURL
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if zoom > 0 {
		q.Set("zoom", strconv.Itoa(zoom))
		q.Set("addressdetails", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return reverseResponse{}, err
	}
	if strings.TrimSpace(c.UserAgent) != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return reverseResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reverseResponse{}, err
	}
	if resp.StatusCode/100 != 2 {
		return reverseResponse{}, fmt.Errorf("nominatim reverse: status %s", resp.Status)
	}

	var out reverseResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return reverseResponse{}, fmt.Errorf("parse reverse response: %w", err)
	}
	return out, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}
