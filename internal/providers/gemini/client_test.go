package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		APIKey:     "test-key",
		Model:      "gemini-1.5-flash",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return srv, client
}

func candidateResponse(text string, totalTokens int) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			},
		}},
		"usageMetadata": map[string]any{"totalTokenCount": totalTokens},
	}
}

func TestAnalyzeImageParsesVerdictAndTokens(t *testing.T) {
	verdict := `{"medication_name":"Doliprane 500mg","confidence":0.92,` +
		`"description":"Paracetamol analgesic","dosage_instructions":"1 tablet up to 3x daily",` +
		`"warnings":["Do not exceed 3g per day"]}`

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-1.5-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key in query: %s", r.URL.RawQuery)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("unexpected request shape: %+v", req.Contents)
		}
		if req.Contents[0].Parts[1].InlineData == nil {
			t.Error("image part missing inline data")
		}
		_ = json.NewEncoder(w).Encode(candidateResponse(verdict, 1874))
	})

	result, err := client.AnalyzeImage(context.Background(), ScanRequest{
		ImageData: []byte("fake-jpeg-bytes"),
		MimeType:  "image/jpeg",
		Locale:    "fr",
	})
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if result.MedicationName != "Doliprane 500mg" {
		t.Fatalf("medication name = %q", result.MedicationName)
	}
	if result.Confidence != 0.92 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
	if result.TotalTokens != 1874 {
		t.Fatalf("total tokens = %d, want 1874", result.TotalTokens)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}

func TestAnalyzeImageRequiresImage(t *testing.T) {
	client, err := NewClient(Options{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.AnalyzeImage(context.Background(), ScanRequest{}); err == nil {
		t.Fatal("AnalyzeImage accepted empty image")
	}
}

func TestChatReturnsReplyAndTokens(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// system prompt + one history turn + the new message
		if len(req.Contents) != 3 {
			t.Errorf("contents length = %d, want 3", len(req.Contents))
		}
		_ = json.NewEncoder(w).Encode(candidateResponse("Take it with food.", 2500))
	})

	result, err := client.Chat(context.Background(), ChatRequest{
		Message: "Should I take this with food?",
		History: []ChatTurn{{Role: "assistant", Text: "This is ibuprofen."}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Reply != "Take it with food." {
		t.Fatalf("reply = %q", result.Reply)
	}
	if result.TotalTokens != 2500 {
		t.Fatalf("total tokens = %d, want 2500", result.TotalTokens)
	}
}

func TestChatSurfacesAPIErrors(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	})

	if _, err := client.Chat(context.Background(), ChatRequest{Message: "hi"}); err == nil {
		t.Fatal("Chat swallowed API error")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("NewClient accepted empty api key")
	}
}
