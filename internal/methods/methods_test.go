package methods

import (
	"testing"

	"canalis/internal/domain"
)

func TestAll_FourMethods(t *testing.T) {
	defs := All()
	if len(defs) != 4 {
		t.Fatalf("expected 4 method definitions, got %d", len(defs))
	}

	seen := make(map[domain.Method]bool)
	for _, d := range defs {
		if seen[d.Method] {
			t.Errorf("duplicate definition for %s", d.Method)
		}
		seen[d.Method] = true
	}
	for _, m := range domain.Methods {
		if !seen[m] {
			t.Errorf("missing definition for %s", m)
		}
	}
}

func TestGet_Unknown(t *testing.T) {
	if _, err := Get(domain.Method("nope")); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestDefinition_Modes(t *testing.T) {
	for _, d := range All() {
		modes := d.Modes()
		if d.IsWarped() {
			if len(modes) != 3 {
				t.Errorf("%s: expected 3 interpolation modes, got %d", d.Method, len(modes))
			}
		} else {
			if len(modes) != 1 || modes[0] != "" {
				t.Errorf("%s: expected a single empty mode, got %v", d.Method, modes)
			}
		}
	}
}

func TestDefinition_ResultKeys(t *testing.T) {
	atlas, err := Get(domain.MethodCustomAtlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := atlas.ResultKeys()
	if len(keys) != 3 {
		t.Fatalf("expected 3 result keys, got %d", len(keys))
	}
	if keys[2].Dir() != "method-custom-atlas-spline" {
		t.Errorf("unexpected result dir: %s", keys[2].Dir())
	}

	tss, err := Get(domain.MethodTotalSpineSeg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys = tss.ResultKeys()
	if len(keys) != 1 || keys[0].Dir() != "method-totalspineseg" {
		t.Errorf("unexpected result keys for totalspineseg: %v", keys)
	}
}

func TestOnlySPINEPSOptional(t *testing.T) {
	for _, d := range All() {
		optional := d.Method == domain.MethodSPINEPS
		if d.Optional != optional {
			t.Errorf("%s: Optional = %v", d.Method, d.Optional)
		}
	}
}

func TestDLMethodsHaveScheme(t *testing.T) {
	for _, d := range All() {
		hasDL := d.Cord == SourceDLCord
		if hasDL && d.Scheme == "" {
			t.Errorf("%s: DL method without label scheme", d.Method)
		}
		if !hasDL && d.Scheme != "" {
			t.Errorf("%s: warped method with label scheme %s", d.Method, d.Scheme)
		}
	}
}
