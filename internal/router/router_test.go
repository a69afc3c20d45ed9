package router

import (
	"testing"

	"github.com/blufio/blufio/internal/costs"
	"github.com/blufio/blufio/internal/provider"
)

func TestClassifyTiers(t *testing.T) {
	cases := []struct {
		text string
		want Complexity
	}{
		{"hi", ComplexityTrivial},
		{"what is the capital of France?", ComplexityMedium},
		{"please refactor this function to use channels ```go\nfunc f(){}\n```", ComplexityComplex},
	}
	for _, c := range cases {
		if got := Classify(c.text); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestStripModelOverride(t *testing.T) {
	stripped, tier, ok := StripModelOverride("@opus write me a poem")
	if !ok || tier != provider.TierOpus || stripped != "write me a poem" {
		t.Fatalf("got stripped=%q tier=%v ok=%v", stripped, tier, ok)
	}

	_, _, ok = StripModelOverride("no override here")
	if ok {
		t.Fatal("expected no override detected")
	}
}

func TestSelectTierAppliesBudgetDownshift(t *testing.T) {
	stripped, tier := SelectTier("please design a new distributed system", costs.BudgetWarnDownshift)
	if stripped == "" {
		t.Fatal("stripped text should not be empty")
	}
	if tier != provider.TierSonnet {
		t.Fatalf("expected downshift from opus to sonnet, got %v", tier)
	}
}

func TestDownshiftNeverGoesBelowHaiku(t *testing.T) {
	if got := Downshift(provider.TierHaiku); got != provider.TierHaiku {
		t.Fatalf("Downshift(haiku) = %v, want haiku", got)
	}
}
