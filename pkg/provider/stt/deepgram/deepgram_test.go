package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/choicerec/pkg/provider/stt"
	"github.com/MrWong99/choicerec/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "vad_events", "true", q.Get("vad_events"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	if _, ok := q["endpointing"]; ok {
		t.Error("expected no endpointing param by default")
	}
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key", WithModel("nova-2"), WithLanguage("de-DE"), WithSampleRate(48000), WithEndpointing(300))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	q := mustQuery(t, rawURL)
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "endpointing", "300", q.Get("endpointing"))
	if _, ok := q["utterance_end_ms"]; ok {
		t.Error("expected no utterance_end_ms param unless configured")
	}

	p, err = New("key", WithUtteranceEnd(1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err = p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	assertEqual(t, "utterance_end_ms", "1000", mustQuery(t, rawURL).Get("utterance_end_ms"))
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "fr-FR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	assertEqual(t, "language", "fr-FR", mustQuery(t, rawURL).Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	keywords := []types.KeywordBoost{
		{Keyword: "miss", Boost: 1},
		{Keyword: "yes", Boost: 2},
	}

	tests := []struct {
		name  string
		model string
		param string
		want  []string
	}{
		{name: "nova-3 key terms", model: "nova-3", param: "keyterm", want: []string{"miss", "yes"}},
		{name: "boosted keywords", model: "nova-2", param: "keywords", want: []string{"miss:1", "yes:2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New("key", WithModel(tc.model))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			rawURL, err := p.buildURL(stt.StreamConfig{Keywords: keywords, Grammar: []byte("<grammar/>")})
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			got := mustQuery(t, rawURL)[tc.param]
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("%s: got %v, want %v", tc.param, got, tc.want)
			}
		})
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	q := mustQuery(t, rawURL)
	if _, ok := q["keywords"]; ok {
		t.Error("expected no 'keywords' param when none provided")
	}
	if _, ok := q["keyterm"]; ok {
		t.Error("expected no 'keyterm' param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"start": 1.5,
		"duration": 0.9,
		"channel": {
			"alternatives": [{
				"transcript": "No, Miss",
				"confidence": 0.95,
				"words": [
					{"word": "no", "start": 1.6, "end": 1.8, "confidence": 0.97},
					{"word": "miss", "start": 1.9, "end": 2.3, "confidence": 0.93}
				]
			}]
		}
	}`)

	tr, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}

	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "No, Miss", tr.Text)
	if tr.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", tr.Confidence)
	}
	if tr.Timestamp != 1500*time.Millisecond {
		t.Errorf("expected timestamp 1.5s, got %v", tr.Timestamp)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(tr.Words))
	}
	assertEqual(t, "word[1]", "miss", tr.Words[1].Word)
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "silent segment", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`},
		{name: "channel of the wrong shape", raw: `{"type":"Results","is_final":true,"channel":[0,1]}`},
		{name: "invalid JSON", raw: `{invalid`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := parseDeepgramResponse([]byte(tc.raw)); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestParseDeepgramResponse_UtteranceBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantText    string
		wantFinal   bool
		wantSegment bool
	}{
		{
			name:        "segment",
			raw:         `{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"I'm waiting"}]}}`,
			wantText:    "I'm waiting",
			wantFinal:   true,
			wantSegment: true,
		},
		{
			name:      "speech final",
			raw:       `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"at the bar"}]}}`,
			wantText:  "at the bar",
			wantFinal: true,
		},
		{
			name:      "silent speech final",
			raw:       `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
			wantFinal: true,
		},
		{
			name:      "utterance end",
			raw:       `{"type":"UtteranceEnd","channel":[0,1],"last_word_end":2.1}`,
			wantFinal: true,
		},
		{
			name:     "interim",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"at the"}]}}`,
			wantText: "at the",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, ok := parseDeepgramResponse([]byte(tc.raw))
			if !ok {
				t.Fatal("expected ok=true")
			}
			assertEqual(t, "text", tc.wantText, tr.Text)
			if tr.IsFinal != tc.wantFinal || tr.Segment != tc.wantSegment {
				t.Errorf("IsFinal/Segment: got %v/%v, want %v/%v", tr.IsFinal, tr.Segment, tc.wantFinal, tc.wantSegment)
			}
		})
	}
}

func TestParseDeepgramResponse_SpeechStarted(t *testing.T) {
	tr, ok := parseDeepgramResponse([]byte(`{"type":"SpeechStarted","timestamp":0.25}`))
	if !ok {
		t.Fatal("expected ok=true for SpeechStarted")
	}
	if tr.IsFinal || tr.Text != "" {
		t.Errorf("expected an empty partial, got %+v", tr)
	}
	if tr.Timestamp != 250*time.Millisecond {
		t.Errorf("expected timestamp 250ms, got %v", tr.Timestamp)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- Session tests ----

func TestStartStream_RoundTrip(t *testing.T) {
	audio := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key" {
			t.Errorf("Authorization: got %q", got)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_, chunk, err := conn.Read(ctx)
		if err != nil {
			return
		}
		audio <- chunk
		for _, msg := range []string{
			`{"type":"SpeechStarted","timestamp":0}`,
			`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"no","confidence":0.6}]}}`,
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"no miss","confidence":0.9}]}}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
		// Wait for CloseStream.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	p, err := New("key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case got := <-audio:
		if len(got) != 4 {
			t.Errorf("server received %d bytes, want 4", len(got))
		}
	case <-ctx.Done():
		t.Fatal("server did not receive audio")
	}

	var partials []string
	for len(partials) < 2 {
		select {
		case tr := <-sess.Partials():
			partials = append(partials, tr.Text)
		case <-ctx.Done():
			t.Fatalf("partials: got %q before timeout", partials)
		}
	}
	if partials[0] != "" || partials[1] != "no" {
		t.Errorf("partials: got %q, want [\"\" \"no\"]", partials)
	}

	select {
	case tr := <-sess.Finals():
		assertEqual(t, "final", "no miss", tr.Text)
	case <-ctx.Done():
		t.Fatal("no final transcript")
	}

	if err := sess.SetKeywords(nil); err == nil {
		t.Error("SetKeywords: expected ErrNotSupported")
	}
	if err := sess.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0}); err == nil {
		t.Error("SendAudio after Close: expected error")
	}
}

func TestStartStream_UtteranceEndsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for _, msg := range []string{
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"I'm waiting"}]}}`,
			`{"type":"UtteranceEnd","channel":[0,1],"last_word_end":1.2}`,
			`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
			`{"type":"UtteranceEnd","channel":[0,1],"last_word_end":1.2}`,
			`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"at the bar"}]}}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	p, err := New("key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	want := []types.Transcript{
		{Text: "I'm waiting", IsFinal: true, Segment: true},
		{IsFinal: true},
		{Text: "at the bar", IsFinal: true},
	}
	for i, w := range want {
		select {
		case tr := <-sess.Finals():
			if tr.Text != w.Text || tr.Segment != w.Segment {
				t.Errorf("final %d: got %q segment=%v, want %q segment=%v", i, tr.Text, tr.Segment, w.Text, w.Segment)
			}
		case <-ctx.Done():
			t.Fatalf("final %d: timeout", i)
		}
	}
}

// ---- helpers ----

func mustQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	return u.Query()
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
