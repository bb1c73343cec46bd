package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/choicerec/pkg/audio"
)

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithModel names the model the server should use. Empty keeps the model the
// server was started with.
func WithModel(model string) ServerOption {
	return func(s *Server) { s.model = model }
}

// WithHTTPClient replaces the HTTP client. The default has a 30s timeout.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(s *Server) { s.client = c }
}

// Server transcribes through the POST /inference endpoint of a running
// whisper.cpp server.
type Server struct {
	url    string
	model  string
	client *http.Client
}

var _ Transcriber = (*Server)(nil)

// NewServer returns a transcriber for the whisper.cpp server at url, e.g.
// "http://localhost:8080".
func NewServer(url string, opts ...ServerOption) (*Server, error) {
	if url == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	s := &Server{
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Transcribe uploads the utterance as a WAV file and returns the recognized
// text.
func (s *Server) Transcribe(ctx context.Context, req Request) (string, error) {
	wav, err := audio.EncodeWAV(req.Samples, req.SampleRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", "0"},
		{"language", req.Language},
		{"prompt", req.Prompt},
		{"model", s.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	hreq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(hreq)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
