package ledger

import (
	"strings"
	"testing"
)

func TestNewEntry_ScalesUnits(t *testing.T) {
	entry := NewEntry(Grant{
		PlanName:         "Pro",
		PlanID:           "pln_0123456789abcdef",
		SubscriptionID:   "sub_0123456789abcdef",
		Owner:            42,
		Limit5hUnits:     10,
		Limit7dUnits:     70,
		Now:              1000,
		EndAt:            2000,
		AutoRenewEnabled: true,
	})

	if entry.Limit5h.Total != 10*UnitScale || entry.Limit5h.Available != entry.Limit5h.Total {
		t.Fatalf("5h limit wrong: %+v", entry.Limit5h)
	}
	if entry.Limit7d.Total != 70*UnitScale || entry.Limit7d.Available != entry.Limit7d.Total {
		t.Fatalf("7d limit wrong: %+v", entry.Limit7d)
	}
	if entry.Limit5h.ResetAt != 1000 || entry.Limit7d.ResetAt != 1000 {
		t.Fatalf("reset_at should start at grant time: %+v", entry)
	}
	if entry.Status != StatusDeployed {
		t.Fatalf("expected deployed, got %q", entry.Status)
	}
	if entry.Duration.StartAt != 1000 || entry.Duration.EndAt != 2000 || !entry.Duration.AutoRenewEnabled {
		t.Fatalf("duration wrong: %+v", entry.Duration)
	}
}

func TestTransforms_PreserveQuota(t *testing.T) {
	entry := NewEntry(Grant{
		SubscriptionID: "sub_x", Owner: 1, Limit5hUnits: 4, Limit7dUnits: 8, Now: 100, EndAt: 200,
	})
	// Simulate partial consumption and a Privnode-side reset.
	entry.Limit5h.Available = 3
	entry.Limit5h.ResetAt = 150
	entry.Limit7d.Available = 1

	deactivated := DeactivateWithoutReset(entry)
	if deactivated.Status != StatusDeactivated {
		t.Fatalf("expected deactivated, got %q", deactivated.Status)
	}
	if deactivated.Limit5h != entry.Limit5h || deactivated.Limit7d != entry.Limit7d {
		t.Fatalf("deactivate must not touch limits: %+v", deactivated)
	}
	if deactivated.Duration != entry.Duration {
		t.Fatalf("deactivate must not touch duration: %+v", deactivated.Duration)
	}

	redeployed := RedeployWithoutReset(deactivated, 300, 1, 400, true)
	if redeployed.Status != StatusDeployed || redeployed.Owner != 1 {
		t.Fatalf("redeploy wrong: %+v", redeployed)
	}
	if redeployed.Limit5h != entry.Limit5h || redeployed.Limit7d != entry.Limit7d {
		t.Fatalf("redeploy must not touch limits: %+v", redeployed)
	}
	if redeployed.Duration.StartAt != 300 || redeployed.Duration.EndAt != 400 || !redeployed.Duration.AutoRenewEnabled {
		t.Fatalf("redeploy must refresh duration: %+v", redeployed.Duration)
	}

	transferred := TransferWithoutReset(redeployed, 500, 2, 600, false)
	if transferred.Owner != 2 || transferred.Status != StatusDeployed {
		t.Fatalf("transfer wrong: %+v", transferred)
	}
	if transferred.Limit5h != entry.Limit5h || transferred.Limit7d != entry.Limit7d {
		t.Fatalf("transfer must not touch limits: %+v", transferred)
	}
}

func TestNormalize_DegradesToEmpty(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"whitespace": "  \n",
		"null":       "null",
		"bad json":   "{not json",
		"object":     `{"plan_id":"x"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			entries := Normalize(raw)
			if entries == nil || len(entries) != 0 {
				t.Fatalf("expected empty ledger, got %#v", entries)
			}
		})
	}
}

func TestNormalizeMarshal_RoundTrip(t *testing.T) {
	entry := NewEntry(Grant{
		PlanName: "Pro", PlanID: "pln_a", SubscriptionID: "sub_a",
		Owner: 7, Limit5hUnits: 1, Limit7dUnits: 2, Now: 10, EndAt: 20,
	})
	raw, errMarshal := Marshal([]Entry{entry})
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}
	for _, key := range []string{`"5h_limit"`, `"7d_limit"`, `"auto_renew_enabled"`, `"subscription_id"`} {
		if !strings.Contains(raw, key) {
			t.Fatalf("wire format missing %s: %s", key, raw)
		}
	}
	if strings.Contains(raw, "last_reset_at") {
		t.Fatalf("unset last_reset_at must be omitted: %s", raw)
	}

	out := Normalize(raw)
	if len(out) != 1 || out[0] != entry {
		t.Fatalf("round trip mismatch: %#v", out)
	}

	if idx := FindIndex(out, "sub_a"); idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
	if idx := FindIndex(out, "sub_missing"); idx != -1 {
		t.Fatalf("expected -1, got %d", idx)
	}
}
