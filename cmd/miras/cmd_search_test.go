package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/miras/pkg/ux"
)

// quietPersonality forces machine output for the duration of a test so
// stream rendering stays plain and spinner-free.
func quietPersonality(t *testing.T) {
	t.Helper()
	prev := ux.GetPersonality()
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	t.Cleanup(func() { ux.SetPersonality(prev) })
}

func TestStreamBackendSearch(t *testing.T) {
	quietPersonality(t)

	var gotPath, gotAccept string
	var gotBody map[string]interface{}
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"phase": "search", "content": "Searching documents..."}`,
			``,
			`: ping`,
			``,
			`data: {"phase": "session_created", "session_id": "sess-123"}`,
			``,
			`data: {"phase": "answer", "content": "The anchor weighs "}`,
			``,
			`data: {"phase": "answer", "content": "200 pounds."}`,
			``,
			`data: {"phase": "citations", "citations": [{"number": "1", "doc_name": "manual.pdf", "page": "12"}]}`,
			``,
			`data: {"phase": "validation_complete", "validation": {"query_answered": true, "accuracy_score": 100, "verified_facts": 1, "total_facts": 1, "facts_checked": [{"fact": "The anchor weighs 200 pounds", "verified": true, "page_found": "12"}]}}`,
			``,
			`data: {"phase": "complete"}`,
			``,
		}
		io.WriteString(w, strings.Join(frames, "\n"))
	}))
	defer mockServer.Close()

	result, err := streamBackendSearch(context.Background(), mockServer.URL, "how heavy is the anchor", "")
	if err != nil {
		t.Fatalf("streamBackendSearch() failed: %v", err)
	}

	if gotPath != "/api/search" {
		t.Errorf("hit wrong endpoint: %s", gotPath)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q, want text/event-stream", gotAccept)
	}
	if gotBody["query"] != "how heavy is the anchor" {
		t.Errorf("request query = %v", gotBody["query"])
	}
	if gotBody["stream"] != true {
		t.Errorf("request stream = %v, want true", gotBody["stream"])
	}

	if result.Answer != "The anchor weighs 200 pounds." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.SessionID != "sess-123" {
		t.Errorf("SessionID = %q, want sess-123", result.SessionID)
	}
	if len(result.Citations) != 1 || result.Citations[0].DocName != "manual.pdf" {
		t.Errorf("Citations = %+v", result.Citations)
	}
	if result.Validation == nil || result.Validation.AccuracyScore != 100 {
		t.Errorf("Validation = %+v", result.Validation)
	}
}

func TestStreamBackendSearch_SendsSessionID(t *testing.T) {
	quietPersonality(t)

	var gotBody map[string]interface{}
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		io.WriteString(w, "data: {\"phase\": \"complete\"}\n\n")
	}))
	defer mockServer.Close()

	if _, err := streamBackendSearch(context.Background(), mockServer.URL, "follow-up", "sess-42"); err != nil {
		t.Fatalf("streamBackendSearch() failed: %v", err)
	}
	if gotBody["session_id"] != "sess-42" {
		t.Errorf("request session_id = %v, want sess-42", gotBody["session_id"])
	}
}

func TestStreamBackendSearch_RejectedQuery(t *testing.T) {
	quietPersonality(t)

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "query rejected by content filter"})
	}))
	defer mockServer.Close()

	_, err := streamBackendSearch(context.Background(), mockServer.URL, "secret stuff", "")
	if err == nil {
		t.Fatal("expected an error for a rejected query")
	}
	if !strings.Contains(err.Error(), "query rejected by content filter") {
		t.Errorf("error = %v, want the backend's reason", err)
	}
}

func TestStreamBackendSearch_UpstreamUnavailable(t *testing.T) {
	quietPersonality(t)

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Search upstream is not configured"})
	}))
	defer mockServer.Close()

	_, err := streamBackendSearch(context.Background(), mockServer.URL, "anything", "")
	if err == nil {
		t.Fatal("expected an error for an unavailable upstream")
	}
	if !strings.Contains(err.Error(), "Search upstream is not configured") {
		t.Errorf("error = %v, want the backend's detail", err)
	}
}

func TestStreamBackendSearch_ErrorFrame(t *testing.T) {
	quietPersonality(t)

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"phase\": \"search\", \"content\": \"Searching...\"}\n\n")
		io.WriteString(w, "data: {\"phase\": \"error\", \"error\": \"upstream connection lost\"}\n\n")
	}))
	defer mockServer.Close()

	_, err := streamBackendSearch(context.Background(), mockServer.URL, "anything", "")
	if err == nil {
		t.Fatal("expected an error when the stream ends with an error frame")
	}
	if !strings.Contains(err.Error(), "upstream connection lost") {
		t.Errorf("error = %v, want the frame's message", err)
	}
}
