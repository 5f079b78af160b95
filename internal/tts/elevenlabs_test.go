package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewElevenLabsClient_DefaultValues(t *testing.T) {
	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:     "test-key",
		Stability:  -1,
		Similarity: -1,
	})

	if client.baseURL != elevenLabsBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, elevenLabsBaseURL)
	}
	if client.modelID != "eleven_multilingual_v2" {
		t.Errorf("modelID = %q, want %q", client.modelID, "eleven_multilingual_v2")
	}
	if client.stability != 0.5 {
		t.Errorf("stability = %f, want %f", client.stability, 0.5)
	}
	if client.similarity != 0.75 {
		t.Errorf("similarity = %f, want %f", client.similarity, 0.75)
	}
}

func TestNewElevenLabsClient_ZeroValuesAreValid(t *testing.T) {
	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "test-key"})

	if client.stability != 0 {
		t.Errorf("stability = %f, want 0", client.stability)
	}
	if client.similarity != 0 {
		t.Errorf("similarity = %f, want 0", client.similarity)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "mp3_44100_128" {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("xi-api-key = %q", r.Header.Get("xi-api-key"))
		}
		var req ttsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text != "hello" {
			t.Errorf("text = %q, want hello", req.Text)
		}
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "test-key", BaseURL: server.URL})
	audio, err := client.Synthesize(context.Background(), "hello", "voice-123")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
}

func TestElevenLabsSynthesizeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: server.URL})
	_, err := client.Synthesize(context.Background(), "hello", "v")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want API error with status", err)
	}
}

func TestElevenLabsVoiceLifecycle(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/voices/add":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("ParseMultipartForm: %v", err)
			}
			if r.FormValue("name") != "guest-abc" {
				t.Errorf("name = %q", r.FormValue("name"))
			}
			f, _, err := r.FormFile("files")
			if err != nil {
				t.Fatalf("FormFile: %v", err)
			}
			data, _ := io.ReadAll(f)
			if string(data) != "sample" {
				t.Errorf("sample = %q", data)
			}
			_, _ = w.Write([]byte(`{"voice_id":"cloned-1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/voices/cloned-1/edit":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/voices/cloned-1":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: server.URL})
	ctx := context.Background()

	id, err := client.CloneVoice(ctx, "guest-abc", []byte("sample"))
	if err != nil {
		t.Fatalf("CloneVoice failed: %v", err)
	}
	if id != "cloned-1" {
		t.Errorf("voice id = %q, want cloned-1", id)
	}
	if err := client.AddVoiceSample(ctx, id, []byte("more")); err != nil {
		t.Errorf("AddVoiceSample failed: %v", err)
	}
	if err := client.DeleteVoice(ctx, id); err != nil {
		t.Errorf("DeleteVoice failed: %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("calls = %v, want 3", calls)
	}
}

func TestOpenAISpeechSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Voice string `json:"voice"`
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice != "alloy" {
			t.Errorf("voice = %q, want alloy", req.Voice)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("fallback-mp3"))
	}))
	defer server.Close()

	client := NewOpenAISpeechClient(OpenAISpeechConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	audio, err := client.Synthesize(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "fallback-mp3" {
		t.Errorf("audio = %q", audio)
	}
}
