package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/snaplens/snaplens/internal/ocr"
)

// Submit posts the image to the Read API. The job handle is the
// Operation-Location header of the 202 response; a response without one is a
// submission failure.
func (c *Client) Submit(ctx context.Context, image []byte) (ocr.Handle, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	u := c.resolve("vision/v3.2/read/analyze")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", newHTTPError("readSubmit", resp, body)
	}

	opLocation := strings.TrimSpace(resp.Header.Get("Operation-Location"))
	return ocr.Handle(opLocation), nil
}

// readPollResponse mirrors the Read API result document. Every field is
// optional on the wire; absence maps to empty values, never a panic.
type readPollResponse struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ReadResults []struct {
			Lines []struct {
				Text string `json:"text"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

// Poll fetches the job document behind the handle and maps its status onto
// the poller's contract: notStarted/running are pending, succeeded carries
// the pages, anything else is a terminal failure status.
func (c *Client) Poll(ctx context.Context, h ocr.Handle) (ocr.PollResult, error) {
	if err := c.wait(ctx); err != nil {
		return ocr.PollResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(h), nil)
	if err != nil {
		return ocr.PollResult{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return ocr.PollResult{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ocr.PollResult{}, err
	}
	if resp.StatusCode/100 != 2 {
		return ocr.PollResult{}, newHTTPError("readPoll", resp, body)
	}

	var out readPollResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ocr.PollResult{}, fmt.Errorf("parse read poll response: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(out.Status)) {
	case "succeeded":
		pages := make([]ocr.Page, 0, len(out.AnalyzeResult.ReadResults))
		for _, rr := range out.AnalyzeResult.ReadResults {
			page := ocr.Page{Lines: make([]string, 0, len(rr.Lines))}
			for _, line := range rr.Lines {
				page.Lines = append(page.Lines, line.Text)
			}
			pages = append(pages, page)
		}
		return ocr.PollResult{Status: ocr.StatusSucceeded, Pages: pages}, nil
	case "notstarted", "running":
		return ocr.PollResult{Status: ocr.StatusPending}, nil
	default:
		return ocr.PollResult{Status: ocr.Status(strings.TrimSpace(out.Status))}, nil
	}
}
