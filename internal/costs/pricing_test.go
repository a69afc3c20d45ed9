package costs

import (
	"math"
	"testing"

	"github.com/blufio/blufio/internal/storage"
)

func TestCalculateExactFormula(t *testing.T) {
	usage := Usage{InputTokens: 1_000_000, OutputTokens: 500_000, CacheReadTokens: 200_000, CacheWriteTokens: 100_000}
	got := Calculate("claude-sonnet-4-6", usage)
	want := 1.0*3.00 + 0.5*15.00 + 0.2*0.30 + 0.1*3.75
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Calculate = %.12f, want %.12f", got, want)
	}
}

func TestRateForUnknownModelFallsBackToSonnet(t *testing.T) {
	got := RateFor("some-future-model-nobody-has-heard-of")
	want := RateFor("claude-sonnet-4-6")
	if got != want {
		t.Fatalf("unknown model rate = %+v, want sonnet fallback %+v", got, want)
	}
}

func TestCheckBudgetThresholds(t *testing.T) {
	cases := []struct {
		name      string
		spend     storage.Spend
		estimated float64
		daily     float64
		monthly   float64
		warn      float64
		want      BudgetStatus
	}{
		{"under threshold", storage.Spend{TodayUSD: 1, MonthUSD: 1}, 0, 20, 200, 0.8, BudgetOK},
		{"warn at 80 pct daily", storage.Spend{TodayUSD: 16, MonthUSD: 1}, 0, 20, 200, 0.8, BudgetWarnDownshift},
		{"denied at daily limit", storage.Spend{TodayUSD: 20, MonthUSD: 1}, 0, 20, 200, 0.8, BudgetDenied},
		{"denied at monthly limit", storage.Spend{TodayUSD: 1, MonthUSD: 200}, 0, 20, 200, 0.8, BudgetDenied},
		{"denied when spend plus estimate crosses daily cap", storage.Spend{TodayUSD: 0.0099, MonthUSD: 0.0099}, 0.01, 0.01, 200, 0.8, BudgetDenied},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CheckBudget(c.spend, c.estimated, c.daily, c.monthly, c.warn)
			if got != c.want {
				t.Fatalf("CheckBudget = %v, want %v", got, c.want)
			}
		})
	}
}
