package ids

import "testing"

func TestNewIDs_WellFormed(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		plan := NewPlanID()
		sub := NewSubscriptionID()
		if !IsPlanID(plan) {
			t.Fatalf("malformed plan id: %q", plan)
		}
		if !IsSubscriptionID(sub) {
			t.Fatalf("malformed subscription id: %q", sub)
		}
		if seen[plan] || seen[sub] {
			t.Fatalf("duplicate id generated")
		}
		seen[plan] = true
		seen[sub] = true
	}
}

func TestValidation(t *testing.T) {
	bad := []string{
		"",
		"pln_",
		"pln_short",
		"sub_0123456789abcdef",  // wrong prefix for a plan
		"pln_0123456789abcde!",  // invalid character
		"pln_0123456789abcdef0", // too long
		" pln_0123456789abcdef",
	}
	for _, v := range bad {
		if IsPlanID(v) {
			t.Fatalf("accepted bad plan id: %q", v)
		}
	}
	if !IsPlanID("pln_0123456789abcdef") {
		t.Fatal("rejected good plan id")
	}
	if !IsSubscriptionID("sub_0123456789abcdef") {
		t.Fatal("rejected good subscription id")
	}
	if IsSubscriptionID("pln_0123456789abcdef") {
		t.Fatal("accepted plan id as subscription id")
	}
}
