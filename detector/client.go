package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
)

// LabelScore is one label/probability pair as returned by the
// classifier service. Classifier models disagree on label vocabulary
// ("fake"/"artificial"/"real"/...), so the raw pairs are mapped into a
// verdict by DeriveVerdict rather than read directly.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier produces label/score pairs for a single decoded image.
type Classifier interface {
	Classify(ctx context.Context, imageData []byte) ([]LabelScore, error)
	Model() string
}

// Client handles communication with the image classifier service
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// classifyRequest represents the request to the classifier service
type classifyRequest struct {
	Image string `json:"image"`
	Model string `json:"model,omitempty"`
}

// classifyResponse represents the response from the classifier service
type classifyResponse struct {
	Status  string       `json:"status"`
	Results []LabelScore `json:"results"`
}

// NewClient creates a new classifier client
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Classify sends an image to the classifier service and returns the
// raw label/score pairs.
func (c *Client) Classify(ctx context.Context, imageData []byte) ([]LabelScore, error) {
	request := classifyRequest{
		Image: base64.StdEncoding.EncodeToString(imageData),
		Model: c.model,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Infof("Sending image to classifier service: %s, image size: %d bytes", c.baseURL, len(imageData))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to classifier service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier service returned status %d", resp.StatusCode)
	}

	var response classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Status != "" && response.Status != "completed" {
		return nil, fmt.Errorf("classifier service returned status: %s", response.Status)
	}
	if len(response.Results) == 0 {
		return nil, fmt.Errorf("classifier service returned no labels")
	}

	return response.Results, nil
}
