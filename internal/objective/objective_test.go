package objective

import (
	"errors"
	"math"
	"testing"
)

func TestKnownMinima(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			o, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			dim, err := o.ResolveDim(3)
			if o.Dim > 0 {
				dim, err = o.ResolveDim(0)
			}
			if err != nil {
				t.Fatalf("ResolveDim: %v", err)
			}

			x := o.Argmin(dim)
			got, err := o.Evaluate(x)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if math.Abs(got-o.Minimum) > 1e-4 {
				t.Errorf("f(argmin) = %f, want %f", got, o.Minimum)
			}
			if b := o.Bounds(dim); !b.Contains(x) {
				t.Errorf("argmin %v outside bounds %v", x, b)
			}
		})
	}
}

func TestSphereFloor(t *testing.T) {
	f := OffsetSphere(0.53, 10)
	if got := f([]float64{0.53, 0.53}); got != 10 {
		t.Errorf("floor = %f, want 10", got)
	}
	if got := f([]float64{1.53}); got != 11 {
		t.Errorf("f(1.53) = %f, want 11", got)
	}
}

func TestResolveDim(t *testing.T) {
	branin, _ := Lookup("branin")
	if _, err := branin.ResolveDim(3); err == nil {
		t.Errorf("Expected error for wrong branin dim")
	}
	sphere, _ := Lookup("sphere")
	if _, err := sphere.ResolveDim(0); err == nil {
		t.Errorf("Expected error for dim 0")
	}
	if _, err := branin.Evaluate([]float64{1}); err == nil {
		t.Errorf("Expected dimension error")
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("ackley")
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("Expected ErrUnknown, got %v", err)
	}
}

func TestFailing(t *testing.T) {
	if _, err := Failing("broken")([]float64{0}); err == nil {
		t.Errorf("Failing returned no error")
	}
}
