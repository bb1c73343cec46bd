package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/choicerec/internal/config"
)

const testYAML = `
recognition:
  source: replay
  replay_file: events.jsonl
choices:
  locale: en
  intention: confirm
  items:
    - text: "Yes, Miss"
    - text: "No, Miss"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testYAML)
	out, err := execute(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.HasPrefix(out, "ok: 2 choices") {
		t.Errorf("output = %q, want an ok summary for 2 choices", out)
	}
}

func TestValidate_InvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, strings.Replace(testYAML, "confirm", "ponder", 1))
	if _, err := execute(t, "validate", "-c", path); err == nil {
		t.Fatal("validate accepted an unknown intention")
	}
}

func TestGrammar(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testYAML)

	tests := []struct {
		format string
		want   []string
	}{
		{format: "srgs", want: []string{"<grammar", "xml:lang=\"en\""}},
		{format: "keywords", want: []string{"yes\t", "no\t", "miss\t"}},
		{format: "phrases", want: []string{"0\tYes, Miss", "1\tNo, Miss"}},
		{format: "json", want: []string{"\"Keyword\": \"miss\""}},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			t.Parallel()
			out, err := execute(t, "grammar", "-c", path, "--format", tc.format)
			if err != nil {
				t.Fatalf("grammar: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("output lacks %q:\n%s", w, out)
				}
			}
		})
	}

	if _, err := execute(t, "grammar", "-c", path, "--format", "yaml"); err == nil {
		t.Error("grammar accepted an unknown format")
	}
}

func TestReplayRequiresFile(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "replay"); err == nil {
		t.Error("replay without a file argument succeeded")
	}
}

func TestBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	for _, name := range []string{"deepgram", "whisper"} {
		if got := reg.STTNames(); !slices.Contains(got, name) {
			t.Errorf("STT providers = %v, missing %q", got, name)
		}
	}
	if got := reg.VADNames(); !slices.Equal(got, []string{"energy"}) {
		t.Errorf("VAD engines = %v", got)
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "energy", Options: map[string]any{"hangover_ms": 200}}); err != nil {
		t.Errorf("CreateVAD(energy): %v", err)
	}
	whisperEntry := config.ProviderEntry{
		Name:    "whisper",
		BaseURL: "http://localhost:8080",
		Options: map[string]any{"language": "de", "max_utterance_ms": 8000, "hangover_ms": 400},
	}
	if _, err := reg.CreateSTT(whisperEntry); err != nil {
		t.Errorf("CreateSTT(whisper): %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); err == nil {
		t.Error("CreateSTT(whisper) without base_url succeeded")
	}
}

func TestOptInt(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"a": 300, "b": 250.0, "c": "x"}
	for key, want := range map[string]int{"a": 300, "b": 250, "c": 0, "missing": 0} {
		if got := optInt(opts, key); got != want {
			t.Errorf("optInt(%q) = %d, want %d", key, got, want)
		}
	}
}
