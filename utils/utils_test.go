package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveFrontmatter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"none", "# Title\n\nBody.", "# Title\n\nBody."},
		{"yaml", "---\ntitle: x\n---\n# Title", "# Title"},
		{"blank line after", "---\ntitle: x\n---\n\nBody", "Body"},
		{"not at start", "Intro\n---\nA\n---\nB", "Intro\n---\nA\n---\nB"},
		{"unterminated", "---\ntitle: x\nBody", "---\ntitle: x\nBody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(RemoveFrontmatter([]byte(tt.in))); got != tt.want {
				t.Errorf("RemoveFrontmatter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("READALONG_TEST_DIR", "docs")

	if got, want := ExpandPath("~/notes.md"), filepath.Join(home, "notes.md"); got != want {
		t.Errorf("ExpandPath(~) = %q, want %q", got, want)
	}
	if got := ExpandPath("/tmp/$READALONG_TEST_DIR/a.md"); got != "/tmp/docs/a.md" {
		t.Errorf("ExpandPath($VAR) = %q", got)
	}
}

func TestIsMarkdownFile(t *testing.T) {
	tests := map[string]bool{
		"README.md":   true,
		"notes.MKD":   true,
		"LICENSE":     true,
		"book.pdf":    false,
		"index.html":  false,
		"chapter.txt": false,
	}
	for name, want := range tests {
		if got := IsMarkdownFile(name); got != want {
			t.Errorf("IsMarkdownFile(%q) = %v, want %v", name, got, want)
		}
	}
}
