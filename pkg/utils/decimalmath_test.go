package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDepthWalk(t *testing.T) {
	levels := []PriceLevel{
		{Price: d("100"), Amount: d("1")},
		{Price: d("101"), Amount: d("2")},
		{Price: d("102"), Amount: d("5")},
	}

	avg, filled, cost := DepthWalk(levels, d("3"))
	if !filled.Equal(d("3")) {
		t.Errorf("filled = %s, want 3", filled)
	}
	wantCost := d("100").Add(d("101").Mul(d("2")))
	if !cost.Equal(wantCost) {
		t.Errorf("cost = %s, want %s", cost, wantCost)
	}
	wantAvg := wantCost.Div(d("3"))
	if !avg.Equal(wantAvg) {
		t.Errorf("avg = %s, want %s", avg, wantAvg)
	}
}

func TestDepthWalk_ThinBook(t *testing.T) {
	levels := []PriceLevel{{Price: d("100"), Amount: d("1")}}
	avg, filled, _ := DepthWalk(levels, d("10"))
	if !filled.Equal(d("1")) {
		t.Errorf("filled = %s, want 1 (book exhausted)", filled)
	}
	if !avg.Equal(d("100")) {
		t.Errorf("avg = %s, want 100", avg)
	}
}

func TestDepthWalk_Empty(t *testing.T) {
	avg, filled, cost := DepthWalk(nil, d("1"))
	if !avg.IsZero() || !filled.IsZero() || !cost.IsZero() {
		t.Error("expected all-zero result for empty book")
	}
}

func TestWeightedAverage(t *testing.T) {
	values := []decimal.Decimal{d("100"), d("101"), d("102")}
	weights := []decimal.Decimal{d("10"), d("20"), d("10")}
	got := WeightedAverage(values, weights)
	if !got.Equal(d("101")) {
		t.Errorf("got %s, want 101", got)
	}
}

func TestWeightedAverage_Mismatched(t *testing.T) {
	if !WeightedAverage([]decimal.Decimal{d("1")}, nil).IsZero() {
		t.Error("expected zero for mismatched lengths")
	}
}

func TestRoundDownToTick(t *testing.T) {
	cases := []struct {
		value, tick, want string
	}{
		{"0.123456", "0.001", "0.123"},
		{"1.999", "0.01", "1.99"},
		{"100.5", "1", "100"},
	}
	for _, c := range cases {
		got := RoundDownToTick(d(c.value), d(c.tick))
		if !got.Equal(d(c.want)) {
			t.Errorf("RoundDownToTick(%s, %s) = %s, want %s", c.value, c.tick, got, c.want)
		}
	}
}

func TestRoundDownToTick_NoTick(t *testing.T) {
	got := RoundDownToTick(d("5.5"), decimal.Zero)
	if !got.Equal(d("5.5")) {
		t.Error("expected unchanged value when tick <= 0")
	}
}

func TestClampDecimal(t *testing.T) {
	if got := ClampDecimal(d("5"), d("1"), d("3")); !got.Equal(d("3")) {
		t.Errorf("got %s, want 3", got)
	}
	if got := ClampDecimal(d("-1"), d("1"), d("3")); !got.Equal(d("1")) {
		t.Errorf("got %s, want 1", got)
	}
	if got := ClampDecimal(d("2"), d("1"), d("3")); !got.Equal(d("2")) {
		t.Errorf("got %s, want 2", got)
	}
}

func TestSpreadPercent(t *testing.T) {
	got := SpreadPercent(d("101"), d("100"))
	if !got.Equal(d("1")) {
		t.Errorf("got %s, want 1", got)
	}
	if !SpreadPercent(d("5"), decimal.Zero).IsZero() {
		t.Error("expected zero spread for non-positive low")
	}
}
