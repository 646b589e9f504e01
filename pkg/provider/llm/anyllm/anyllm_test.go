package anyllm_test

import (
	"testing"

	"github.com/quillscribe/quill/pkg/provider/llm/anyllm"
)

func TestNew_EmptyProviderName_ReturnsError(t *testing.T) {
	_, err := anyllm.New("", "llama3.2")
	if err == nil {
		t.Fatal("expected error for empty provider name, got nil")
	}
}

func TestNew_EmptyModel_ReturnsError(t *testing.T) {
	_, err := anyllm.New("ollama", "")
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestNew_CloudProvider_IsRejected(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "gemini", "groq"} {
		if _, err := anyllm.New(name, "some-model"); err == nil {
			t.Errorf("New(%q) = nil error, want rejection of non-local backend", name)
		}
	}
}

func TestNew_LocalProviders_Accepted(t *testing.T) {
	for _, name := range []string{"ollama", "llamacpp", "llamafile", "OLLAMA"} {
		if _, err := anyllm.New(name, "llama3.2"); err != nil {
			t.Errorf("New(%q) returned error: %v", name, err)
		}
	}
}
