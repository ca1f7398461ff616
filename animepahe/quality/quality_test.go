package quality

import (
	"errors"
	"testing"

	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/types"
)

func cand(link string, h int) types.EpisodeCandidate {
	return types.EpisodeCandidate{LockerLink: link, DisplayName: link, ResolutionHeight: h}
}

func TestParseHeight(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"SubsPlease · 720p (105MB) BD", 720},
		{"SubsPlease · 1080p (210MB)", 1080},
		{"Group · 360p eng", 360},
		{"Group · 2160p", 2160},
		{"no height here", 0},
		{"720px wide", 0},
		{"x1080p", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseHeight(tt.label); got != tt.want {
			t.Errorf("ParseHeight(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}

func TestSelect(t *testing.T) {
	list := []types.EpisodeCandidate{
		cand("a", 360),
		cand("b", 720),
		cand("c", 1080),
		cand("d", 1080),
		cand("e", 360),
	}

	tests := []struct {
		name   string
		target int
		want   string
	}{
		{name: "highest first wins tie", target: Highest, want: "c"},
		{name: "lowest first wins tie", target: Lowest, want: "a"},
		{name: "exact", target: 720, want: "b"},
		{name: "exact first of duplicates", target: 1080, want: "c"},
		{name: "missing falls back to highest", target: 480, want: "c"},
		{name: "below lowest treated as highest", target: -7, want: "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(list, tt.target)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if got.LockerLink != tt.want {
				t.Errorf("Select() = %s, want %s", got.LockerLink, tt.want)
			}
		})
	}
}

func TestSelectScenario(t *testing.T) {
	list := []types.EpisodeCandidate{cand("L1", 720), cand("L2", 1080), cand("L3", 360)}

	if got, _ := Select(list, 0); got.LockerLink != "L2" {
		t.Errorf("target 0 = %s", got.LockerLink)
	}
	if got, _ := Select(list, -1); got.LockerLink != "L3" {
		t.Errorf("target -1 = %s", got.LockerLink)
	}
	if got, _ := Select(list, 720); got.LockerLink != "L1" {
		t.Errorf("target 720 = %s", got.LockerLink)
	}
	if got, _ := Select(list, 480); got.LockerLink != "L2" {
		t.Errorf("target 480 = %s", got.LockerLink)
	}
}

func TestSelectUnknownHeights(t *testing.T) {
	list := []types.EpisodeCandidate{cand("x", 0), cand("y", 0)}
	got, err := Select(list, Highest)
	if err != nil {
		t.Fatal(err)
	}
	if got.LockerLink != "x" {
		t.Errorf("got %s, want first entry", got.LockerLink)
	}
}

func TestSelectEmpty(t *testing.T) {
	for _, target := range []int{Highest, Lowest, 720} {
		if _, err := Select(nil, target); !errors.Is(err, errs.ErrEmptyCandidateSet) {
			t.Errorf("target %d: expected ErrEmptyCandidateSet, got %v", target, err)
		}
	}
}

func TestSelectIsMember(t *testing.T) {
	list := []types.EpisodeCandidate{cand("a", 480), cand("b", 240)}
	for _, target := range []int{-1, 0, 240, 999} {
		got, _ := Select(list, target)
		if got != list[0] && got != list[1] {
			t.Errorf("target %d returned non-member %+v", target, got)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := map[int]string{0: "Max Available", -1: "Lowest Available", 720: "720p"}
	for target, want := range tests {
		if got := Describe(target); got != want {
			t.Errorf("Describe(%d) = %q, want %q", target, got, want)
		}
	}
}
