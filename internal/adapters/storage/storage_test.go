package storage

import (
	"strings"
	"testing"
)

func TestObjectKeyCannotEscapeFolder(t *testing.T) {
	got := ObjectKey("/chains/CH-1/abc/", "../../etc/passwd")
	if !strings.HasPrefix(got, "chains/CH-1/abc/") || strings.Contains(got[len("chains/CH-1/abc/"):], "/") {
		t.Fatalf("expected key confined to folder, got %q", got)
	}
}

func TestArtifactFolder(t *testing.T) {
	if got := ArtifactFolder("CH/77", "id-1"); got != "chains/CH_77/id-1" {
		t.Fatalf("unexpected folder %q", got)
	}
}

func TestValidateObject(t *testing.T) {
	if err := ValidateObject(Object{Name: " "}); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
	if err := ValidateObject(Object{Name: "a.json", Content: make([]byte, MaxObjectSize+1)}); err == nil {
		t.Fatalf("expected oversize object to be rejected")
	}
	if err := ValidateObject(Object{Name: "a.json", Content: []byte("{}")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
