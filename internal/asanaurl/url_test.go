package asanaurl

import (
	"errors"
	"testing"
)

func TestParse_LegacyPortfolio(t *testing.T) {
	info, err := Parse("https://app.asana.com/0/portfolio/1208241409266353/list")
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindPortfolio || info.GID != "1208241409266353" {
		t.Errorf("info = %+v", info)
	}
}

func TestParse_LegacyProjectViews(t *testing.T) {
	for _, url := range []string{
		"https://app.asana.com/0/1234567890/list",
		"https://app.asana.com/0/1234567890/board",
		"https://app.asana.com/0/1234567890/timeline",
		"https://app.asana.com/0/1234567890",
	} {
		info, err := Parse(url)
		if err != nil {
			t.Fatalf("Parse(%q): %v", url, err)
		}
		if info.Kind != KindProject || info.GID != "1234567890" {
			t.Errorf("Parse(%q) = %+v", url, info)
		}
	}
}

func TestParse_LegacyTask(t *testing.T) {
	info, err := Parse("https://app.asana.com/0/1234567890/9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindTask || info.GID != "9876543210" || info.ProjectGID != "1234567890" {
		t.Errorf("info = %+v", info)
	}
}

func TestParse_NewFormat(t *testing.T) {
	info, err := Parse("https://app.asana.com/1/1209759542559920/project/1209759542987106/list/1209759322889760")
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindProject || info.GID != "1209759542987106" {
		t.Errorf("project info = %+v", info)
	}
	if info.WorkspaceGID != "1209759542559920" {
		t.Errorf("workspace = %s", info.WorkspaceGID)
	}

	info, err = Parse("https://app.asana.com/1/1209759542559920/portfolio/1208241409266353/list")
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindPortfolio || info.GID != "1208241409266353" {
		t.Errorf("portfolio info = %+v", info)
	}

	info, err = Parse("https://app.asana.com/1/1209759542559920/task/9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindTask || info.GID != "9876543210" || info.ProjectGID != "" {
		t.Errorf("task info = %+v", info)
	}

	info, err = Parse("https://app.asana.com/1/1209759542559920/team/555/overview")
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindTeam || info.GID != "555" {
		t.Errorf("team info = %+v", info)
	}
}

func TestParse_NotAsana(t *testing.T) {
	_, err := Parse("https://google.com/foo")
	if !errors.Is(err, ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestResolveGID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1234567890", "1234567890"},
		{"https://app.asana.com/0/portfolio/1234567890/list", "1234567890"},
		// Emails and names pass through for later resolution.
		{"user@example.com", "user@example.com"},
		{"My Project", "My Project"},
	}
	for _, tt := range tests {
		got, err := ResolveGID(tt.in)
		if err != nil {
			t.Errorf("ResolveGID(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveGID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ResolveGID("https://app.asana.com/9/whatever"); err == nil {
		t.Error("bad asana URL should fail")
	}
}

func TestIsGID(t *testing.T) {
	if !IsGID("1234567890") {
		t.Error("digits should be a GID")
	}
	for _, s := range []string{"", "abc", "123abc"} {
		if IsGID(s) {
			t.Errorf("IsGID(%q) = true", s)
		}
	}
}

func TestGenerate(t *testing.T) {
	if got := Generate(KindProject, "42"); got != "https://app.asana.com/0/42" {
		t.Errorf("project url = %s", got)
	}
	if got := Generate(KindPortfolio, "42"); got != "https://app.asana.com/0/portfolio/42/list" {
		t.Errorf("portfolio url = %s", got)
	}
	if got := Generate(KindTask, "42"); got != "https://app.asana.com/0/0/42" {
		t.Errorf("task url = %s", got)
	}
}
