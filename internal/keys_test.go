package internal

import (
	"strings"
	"testing"
)

func TestSanitizeFolder(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"plain", "services", "services"},
		{"uppercase", "Services", "services"},
		{"nested", "a/b/c", "a/b/c"},
		{"repeated separators", "a//b///c", "a/b/c"},
		{"leading and trailing", "/a/b/", "a/b"},
		{"traversal", "../../etc/passwd", "etc/passwd"},
		{"dots stripped", "a/../b", "a/b"},
		{"illegal chars", "pho to$/bar!", "photo/bar"},
		{"underscores survive", "My_Folder", "my_folder"},
		{"empty", "", ""},
		{"only separators", "///", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFolder(tt.input); got != tt.expect {
				t.Errorf("SanitizeFolder(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func TestBuildKeyBase(t *testing.T) {
	key := BuildKeyBase("Services/Photos")
	if !strings.HasPrefix(key, "services/photos/") {
		t.Errorf("expected folder prefix, got %q", key)
	}
	if strings.Contains(key, "..") {
		t.Errorf("key contains traversal: %q", key)
	}

	leaf := key[strings.LastIndex(key, "/")+1:]
	if len(leaf) < 16 {
		t.Errorf("leaf id too short to be collision-resistant: %q", leaf)
	}
}

func TestBuildKeyBaseNoFolder(t *testing.T) {
	key := BuildKeyBase("")
	if strings.Contains(key, "/") {
		t.Errorf("expected bare leaf without folder, got %q", key)
	}
}

func TestBuildKeyBaseUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key := BuildKeyBase("dup")
		if seen[key] {
			t.Fatalf("duplicate key base generated: %q", key)
		}
		seen[key] = true
	}
}
