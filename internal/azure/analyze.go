package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/snaplens/snaplens/internal/vision"
)

// analyzeResponse mirrors the image analysis document. Every field is
// optional on the wire.
type analyzeResponse struct {
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Description struct {
		Captions []struct {
			Text string `json:"text"`
		} `json:"captions"`
	} `json:"description"`
	Objects []struct {
		Object string `json:"object"`
	} `json:"objects"`
	Brands []struct {
		Name string `json:"name"`
	} `json:"brands"`
}

// Analyze runs the tagging pass: tags, caption, objects and brand labels.
func (c *Client) Analyze(ctx context.Context, image []byte, mimeType string) (vision.Tags, error) {
	if err := c.wait(ctx); err != nil {
		return vision.Tags{}, err
	}

	u := c.resolve("vision/v3.2/analyze")
	q := u.Query()
	q.Set("visualFeatures", "Tags,Description,Objects,Brands")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(image))
	if err != nil {
		return vision.Tags{}, err
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.do(req)
	if err != nil {
		return vision.Tags{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vision.Tags{}, err
	}
	if resp.StatusCode/100 != 2 {
		return vision.Tags{}, newHTTPError("analyze", resp, body)
	}

	var out analyzeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return vision.Tags{}, fmt.Errorf("parse analyze response: %w", err)
	}

	tags := vision.Tags{}
	for _, t := range out.Tags {
		tags.Tags = append(tags.Tags, t.Name)
	}
	for _, o := range out.Objects {
		tags.Objects = append(tags.Objects, o.Object)
	}
	for _, b := range out.Brands {
		tags.Brands = append(tags.Brands, b.Name)
	}
	if len(out.Description.Captions) > 0 {
		tags.Caption = out.Description.Captions[0].Text
	}
	return tags, nil
}
