package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"civicreport/classify"
	"civicreport/models"
	"civicreport/parser"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

const promptDuplicate = `
You are a deduplication judge for a municipal reporting platform.
You receive one NEW report and a list of CANDIDATE reports of the same kind
submitted within the last two days. Decide whether the new report describes
the same real-world issue as one of the candidates, taking the positions
(latitude/longitude) and the free text into account.

Output a single valid JSON object and nothing else:
{
  "is_duplicate": <true | false>,
  "duplicate_of_id": "<id of the matched candidate, or empty string>"
}

Rules:
* Nominate at most one candidate, and only an id that appears in the
  candidate list.
* Reports hundreds of meters apart are almost never duplicates unless the
  text clearly refers to the same named street or site.
* When in doubt, answer {"is_duplicate": false, "duplicate_of_id": ""}.
`

const promptPriority = `
You are a triage officer for a municipal reporting platform. Given the title
and description of a report, score its severity.

Output a single valid JSON object and nothing else:
{
  "priority": "<low | medium | high>"
}

Rules:
* "high" is for danger to people or major infrastructure failure (gas leaks,
  collapsed structures, live wires, flooding).
* "medium" is for damage that degrades service but endangers nobody.
* "low" is everything else, including cosmetic issues.
`

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client represents an OpenAI-backed classifier
type Client struct {
	apiKey string
	model  string
	client *http.Client
}

// NewClient creates a new OpenAI classifier client
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{},
	}
}

// SourceName identifies this provider in logs
func (c *Client) SourceName() string {
	return "ChatGPT"
}

// candidateView is the trimmed candidate representation sent to the model.
// Images and update history are withheld to keep the prompt small.
type candidateView struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	LastReported string  `json:"last_reported"`
}

// DetectDuplicate asks the model whether report duplicates one of candidates.
func (c *Client) DetectDuplicate(ctx context.Context, report models.Report, candidates []models.Report) (classify.DuplicateResult, error) {
	views := make([]candidateView, 0, len(candidates))
	for _, cand := range candidates {
		views = append(views, candidateView{
			ID:           cand.ID,
			Title:        cand.Title,
			Description:  cand.Description,
			Latitude:     cand.Latitude,
			Longitude:    cand.Longitude,
			LastReported: cand.LastReported.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	payload := struct {
		New        candidateView   `json:"new_report"`
		Candidates []candidateView `json:"candidates"`
	}{
		New: candidateView{
			ID:          report.ID,
			Title:       report.Title,
			Description: report.Description,
			Latitude:    report.Latitude,
			Longitude:   report.Longitude,
		},
		Candidates: views,
	}

	userContent, err := json.Marshal(payload)
	if err != nil {
		return classify.DuplicateResult{}, fmt.Errorf("failed to marshal candidates: %w", err)
	}

	response, err := c.complete(ctx, promptDuplicate, string(userContent))
	if err != nil {
		return classify.DuplicateResult{}, err
	}

	verdict, err := parser.ParseDuplicateVerdict(response)
	if err != nil {
		return classify.DuplicateResult{}, fmt.Errorf("failed to parse duplicate verdict: %w", err)
	}

	return classify.DuplicateResult{
		IsDuplicate:   verdict.IsDuplicate,
		DuplicateOfID: verdict.DuplicateOfID,
	}, nil
}

// ScorePriority asks the model to score the severity of a report.
func (c *Client) ScorePriority(ctx context.Context, title, description string) (models.Priority, error) {
	userContent, err := json.Marshal(struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}{Title: title, Description: description})
	if err != nil {
		return models.PriorityUnset, fmt.Errorf("failed to marshal report text: %w", err)
	}

	response, err := c.complete(ctx, promptPriority, string(userContent))
	if err != nil {
		return models.PriorityUnset, err
	}

	verdict, err := parser.ParsePriorityVerdict(response)
	if err != nil {
		return models.PriorityUnset, fmt.Errorf("failed to parse priority verdict: %w", err)
	}

	return models.Priority(verdict.Priority), nil
}

// complete performs one chat-completions round trip and returns the raw
// assistant message content.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", openAIEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}
