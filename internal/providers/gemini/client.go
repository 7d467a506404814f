package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Analyzer identifies a medication from a photo.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, req ScanRequest) (*ScanResult, error)
}

// Assistant answers follow-up questions about medications.
type Assistant interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the Gemini generateContent API. Every result carries the
// total token count reported by the API so callers can bill by real usage.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const (
	defaultTimeout = 30 * time.Second
	defaultModel   = "gemini-1.5-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	maxOutputTokens = 4096
)

func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: opts.APIKey, model: model, baseURL: baseURL, client: client}, nil
}

// ScanRequest carries a medication photo for identification.
type ScanRequest struct {
	ImageData []byte
	MimeType  string
	Locale    string
}

// ScanResult is the structured identification extracted from the model's
// JSON answer. TotalTokens is the usage reported by the API for this call.
type ScanResult struct {
	MedicationName     string   `json:"medication_name"`
	Confidence         float64  `json:"confidence"`
	Description        string   `json:"description"`
	DosageInstructions string   `json:"dosage_instructions"`
	Warnings           []string `json:"warnings"`
	TotalTokens        int      `json:"-"`
}

// ChatTurn is one prior exchange in an assistant conversation.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type ChatRequest struct {
	Message string
	History []ChatTurn
	Locale  string
}

type ChatResult struct {
	Reply       string
	TotalTokens int
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// AnalyzeImage asks the model to identify the medication in the photo and
// return a structured JSON verdict.
func (c *Client) AnalyzeImage(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if len(req.ImageData) == 0 {
		return nil, errors.New("gemini: image data is required")
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: scanPrompt(req.Locale)},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(req.ImageData),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.1,
			MaxOutputTokens:  maxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	resp, err := c.generate(ctx, payload)
	if err != nil {
		return nil, err
	}
	text, err := firstCandidateText(resp)
	if err != nil {
		return nil, err
	}

	var result ScanResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("gemini: decode scan verdict: %w", err)
	}
	result.TotalTokens = resp.UsageMetadata.TotalTokenCount
	return &result, nil
}

// Chat sends the conversation to the model and returns its reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("gemini: message is required")
	}

	contents := []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: chatPrompt(req.Locale)}},
	}}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == "assistant" || turn.Role == "model" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Message}}})

	payload := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     0.4,
			MaxOutputTokens: maxOutputTokens,
		},
	}

	resp, err := c.generate(ctx, payload)
	if err != nil {
		return nil, err
	}
	text, err := firstCandidateText(resp)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Reply: text, TotalTokens: resp.UsageMetadata.TotalTokenCount}, nil
}

func (c *Client) generate(ctx context.Context, payload geminiRequest) (*geminiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: call api: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("gemini: api status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	return &resp, nil
}

func firstCandidateText(resp *geminiResponse) (string, error) {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text, nil
			}
		}
	}
	return "", errors.New("gemini: empty response")
}

func scanPrompt(locale string) string {
	lang := "English"
	if locale == "fr" {
		lang = "French"
	}
	return "You are a pharmacist's assistant. Identify the medication shown in the photo. " +
		"Respond with a single JSON object using these keys: medication_name (string), " +
		"confidence (number between 0 and 1), description (string), dosage_instructions (string), " +
		"warnings (array of strings). Write every text field in " + lang + ". " +
		"If you cannot identify the medication, set medication_name to \"unknown\" and confidence to 0."
}

func chatPrompt(locale string) string {
	lang := "English"
	if locale == "fr" {
		lang = "French"
	}
	return "You are a medication assistant. Answer questions about dosage, interactions and side effects in " + lang + ". " +
		"Always remind the user to consult a pharmacist or doctor for medical decisions. Keep answers short."
}
