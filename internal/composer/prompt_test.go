package composer

import (
	"strings"
	"testing"

	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/profile"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		Name:               "Ada",
		Role:               "Working Professional",
		WorkArea:           "Software engineering",
		Interests:          "chess, hiking",
		CommunicationStyle: "Direct and brief",
		HelpAreas:          []string{"Work tasks", "Learning new things"},
		WorkHours:          "Morning person",
	}
}

func TestSystemPrompt_NoProfileNoMemory(t *testing.T) {
	got := SystemPrompt(nil, nil, nil)
	if got != "You are a helpful personal assistant.\n" {
		t.Errorf("SystemPrompt = %q", got)
	}
}

func TestSystemPrompt_NoProfileWithMemory(t *testing.T) {
	relevant := []history.Record{{User: "plan my week", Assistant: "ok"}}
	got := SystemPrompt(nil, relevant, nil)

	want := "You are a helpful personal assistant.\n" +
		"Previous relevant conversations:\n" +
		"- You previously discussed: 'plan my week...'\n"
	if got != want {
		t.Errorf("SystemPrompt =\n%q\nwant\n%q", got, want)
	}
}

func TestSystemPrompt_WithProfile(t *testing.T) {
	got := SystemPrompt(testProfile(), nil, nil)

	want := "You are a personalized assistant for Ada.\n\n" +
		"About them:\n" +
		"- Role: Working Professional\n" +
		"- Work/Study: Software engineering\n" +
		"- Communication style: Direct and brief\n" +
		"- Work schedule: Morning person\n" +
		"- Interests: chess, hiking\n" +
		"- Family: Not specified\n" +
		"- Areas they want help with: Work tasks, Learning new things\n" +
		"\n" +
		"\n\n" +
		"Respond in a direct and brief way, considering their background and previous conversations.\n" +
		"Reference their interests and past discussions when relevant."
	if got != want {
		t.Errorf("SystemPrompt =\n%s\nwant\n%s", got, want)
	}
}

func TestSystemPrompt_FamilyInfo(t *testing.T) {
	p := testProfile()
	p.FamilyInfo = "married, two kids"

	got := SystemPrompt(p, nil, nil)
	if !strings.Contains(got, "- Family: married, two kids\n") {
		t.Errorf("family line missing from:\n%s", got)
	}
}

func TestMemoryContext_Truncation(t *testing.T) {
	long := strings.Repeat("a", 80)
	relevant := []history.Record{{User: long, Assistant: "x"}}
	recent := []history.Record{{User: long, Assistant: strings.Repeat("b", 50)}}

	got := MemoryContext(relevant, recent)

	wantRel := "- You previously discussed: '" + strings.Repeat("a", 60) + "...'\n"
	if !strings.Contains(got, wantRel) {
		t.Errorf("relevant line not truncated to 60:\n%s", got)
	}
	wantRecent := "- Recent: " + strings.Repeat("a", 40) + "... -> " + strings.Repeat("b", 40) + "...\n"
	if !strings.Contains(got, wantRecent) {
		t.Errorf("recent line not truncated to 40:\n%s", got)
	}
}

func TestMemoryContext_ShortTextStillMarked(t *testing.T) {
	got := MemoryContext(nil, []history.Record{{User: "hi", Assistant: "hello"}})
	want := "\nRecent context:\n- Recent: hi... -> hello...\n"
	if got != want {
		t.Errorf("MemoryContext = %q, want %q", got, want)
	}
}

func TestMemoryContext_OnlyLastTwoRecent(t *testing.T) {
	recent := []history.Record{
		{User: "one", Assistant: "1"},
		{User: "two", Assistant: "2"},
		{User: "three", Assistant: "3"},
	}
	got := MemoryContext(nil, recent)

	if strings.Contains(got, "one...") {
		t.Errorf("oldest recent record should be omitted:\n%s", got)
	}
	if !strings.Contains(got, "two...") || !strings.Contains(got, "three...") {
		t.Errorf("last two recent records missing:\n%s", got)
	}
	if strings.Index(got, "two...") > strings.Index(got, "three...") {
		t.Errorf("recent records out of order:\n%s", got)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := strings.Repeat("é", 45)
	got := truncate(s, 40)
	if got != strings.Repeat("é", 40)+"..." {
		t.Errorf("truncate = %q", got)
	}
}

func TestCompose(t *testing.T) {
	c := New(0, -1)
	req := c.Compose("What should I do today?", testProfile(), nil, nil)

	if req.User != "What should I do today?" {
		t.Errorf("User = %q", req.User)
	}
	if req.MaxTokens != 250 {
		t.Errorf("MaxTokens = %d, want 250", req.MaxTokens)
	}
	if req.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", req.Temperature)
	}
	if !strings.HasPrefix(req.System, "You are a personalized assistant for Ada.") {
		t.Errorf("System = %q", req.System)
	}
}
