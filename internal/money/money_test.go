package money

import (
	"errors"
	"testing"
)

func TestAddSameCurrency(t *testing.T) {
	a := New(1500, USD)
	b := New(2500, USD)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.Amount != 4000 || sum.Currency != USD {
		t.Errorf("sum: got %+v, want {4000 USD}", sum)
	}

	// Commutative.
	sum2, err := b.Add(a)
	if err != nil {
		t.Fatalf("Add reversed: %v", err)
	}
	if sum2 != sum {
		t.Errorf("add not commutative: %+v vs %+v", sum, sum2)
	}

	// Associative.
	c := New(100, USD)
	left, _ := sum.Add(c)
	bc, _ := b.Add(c)
	right, _ := a.Add(bc)
	if left != right {
		t.Errorf("add not associative: %+v vs %+v", left, right)
	}
}

func TestMixedCurrencyFails(t *testing.T) {
	a := New(1000, USD)
	b := New(1000, HTG)

	if _, err := a.Add(b); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Add mixed: got %v, want ErrCurrencyMismatch", err)
	}
	if _, err := a.Subtract(b); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Subtract mixed: got %v, want ErrCurrencyMismatch", err)
	}
	if _, err := a.Compare(b); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Compare mixed: got %v, want ErrCurrencyMismatch", err)
	}
}

func TestSubtractAndCompare(t *testing.T) {
	a := New(5000, CAD)
	b := New(1250, CAD)

	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if diff.Amount != 3750 {
		t.Errorf("diff: got %d, want 3750", diff.Amount)
	}

	cmp, _ := a.Compare(b)
	if cmp != 1 {
		t.Errorf("Compare(a,b): got %d, want 1", cmp)
	}
	cmp, _ = b.Compare(a)
	if cmp != -1 {
		t.Errorf("Compare(b,a): got %d, want -1", cmp)
	}
	cmp, _ = a.Compare(a)
	if cmp != 0 {
		t.Errorf("Compare(a,a): got %d, want 0", cmp)
	}
}

func TestRoundHalfUpRatio(t *testing.T) {
	cases := []struct {
		num, den, want int64
	}{
		{100, 3, 33},    // 33.33 rounds down
		{200, 3, 67},    // 66.67 rounds up
		{5, 10, 1},      // exactly .5 rounds up
		{15, 10, 2},     // 1.5 rounds up
		{-5, 10, -1},    // half away from zero
		{-100, 3, -33},
		{290000, 1000, 290}, // 2.9% of 10000
	}
	for _, c := range cases {
		got := RoundHalfUpRatio(c.num, c.den)
		if got != c.want {
			t.Errorf("RoundHalfUpRatio(%d, %d): got %d, want %d", c.num, c.den, got, c.want)
		}
	}
}

func TestMulRatio(t *testing.T) {
	gross := New(100000, USD)
	fee := gross.MulRatio(10, 100)
	if fee.Amount != 10000 || fee.Currency != USD {
		t.Errorf("10%% of 100000: got %+v, want {10000 USD}", fee)
	}
}

func TestFormatForDisplay(t *testing.T) {
	cases := []struct {
		m      Money
		locale string
		want   string
	}{
		{New(123456, USD), "en-US", "1234.56 USD"},
		{New(5000, HTG), "fr-HT", "50,00 HTG"},
		{New(-150, CAD), "en-CA", "-1.50 CAD"},
		{New(-50, USD), "en-US", "-0.50 USD"},
		{New(0, HTG), "fr-HT", "0,00 HTG"},
	}
	for _, c := range cases {
		got := c.m.FormatForDisplay(c.locale)
		if got != c.want {
			t.Errorf("FormatForDisplay(%+v, %q): got %q, want %q", c.m, c.locale, got, c.want)
		}
	}
}

func TestProjectPreferred(t *testing.T) {
	// Preferred bucket is zero: falls back to the non-zero bucket.
	got, ok := ProjectPreferred(map[Currency]Money{
		USD: Zero(USD),
		HTG: New(5000, HTG),
	}, USD)
	if !ok {
		t.Fatal("expected ok")
	}
	if got.Currency != HTG || got.Amount != 5000 {
		t.Errorf("fallback: got %+v, want {5000 HTG}", got)
	}

	// Preferred bucket wins when non-zero.
	got, ok = ProjectPreferred(map[Currency]Money{
		USD: New(100, USD),
		HTG: New(999999, HTG),
	}, USD)
	if !ok || got.Currency != USD {
		t.Errorf("preferred: got %+v ok=%v, want USD bucket", got, ok)
	}

	// Largest magnitude wins among non-preferred buckets.
	got, ok = ProjectPreferred(map[Currency]Money{
		CAD: New(-2000, CAD),
		HTG: New(1000, HTG),
	}, USD)
	if !ok || got.Currency != CAD {
		t.Errorf("magnitude: got %+v ok=%v, want CAD bucket", got, ok)
	}

	// All zero: sentinel.
	got, ok = ProjectPreferred(map[Currency]Money{
		USD: Zero(USD),
		HTG: Zero(HTG),
	}, USD)
	if ok {
		t.Errorf("all zero: got %+v ok=true, want ok=false", got)
	}
	if !got.IsZero() {
		t.Errorf("sentinel should be zero, got %+v", got)
	}
}
