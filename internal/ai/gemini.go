package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/pauljones0/production-scout/internal/models"
)

const enrichConcurrency = 4

// contentGenerator is the slice of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models  contentGenerator
	modelID string
}

type summaryResult struct {
	Summary string `json:"summary"`
}

// NewClient returns a nil client when apiKey is empty; every method on a nil
// client is a no-op.
func NewClient(ctx context.Context, apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{models: client.Models, modelID: modelID}, nil
}

var summaryConfig = &genai.GenerateContentConfig{
	Temperature:      genai.Ptr[float32](0.1), // Low temperature for deterministic output
	ResponseMIMEType: "application/json",
	ResponseSchema: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeString,
				Description: "One sentence (at most 30 words) saying what is being produced, where, and what visual effects work it needs.",
			},
		},
		Required: []string{"summary"},
	},
}

// Summarize asks Gemini for a one-sentence summary of the posting.
func (c *Client) Summarize(ctx context.Context, p models.RawPosting) (string, error) {
	if c == nil || c.models == nil {
		return "", nil // Graceful degradation
	}

	prompt := fmt.Sprintf(`
Summarize this production listing for a visual effects studio:
Title: %q
Company: %q
Location: %q
Stage: %q
Budget: %q
Description: %q

Output JSON adhering to the schema.
`, p.Title, p.Company, p.Location, p.Stage, p.Budget, p.Description)

	resp, err := c.models.GenerateContent(ctx, c.modelID, genai.Text(prompt), summaryConfig)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response candidates from gemini")
	}

	// Clean up potential markdown formatting just in case
	jsonStr := strings.TrimSpace(resp.Text())
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")

	var result summaryResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return "", fmt.Errorf("failed to parse gemini response: %w", err)
	}
	return strings.TrimSpace(result.Summary), nil
}

// Enrich fills Summary on each posting in place. A failed summary is logged
// and left empty.
func (c *Client) Enrich(ctx context.Context, postings []models.RawPosting) {
	if c == nil || len(postings) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range postings {
		if postings[i].Summary != "" {
			continue
		}
		g.Go(func() error {
			summary, err := c.Summarize(gctx, postings[i])
			if err != nil {
				slog.Warn("AI summary failed", "title", postings[i].Title, "error", err)
				return nil
			}
			postings[i].Summary = summary
			return nil
		})
	}
	_ = g.Wait()
}
