package domain

import "testing"

func TestGetTierFallsBackToBronze(t *testing.T) {
	for _, id := range []string{"", "diamond", "Bronze"} {
		if got := GetTier(id); got.ID != "bronze" {
			t.Errorf("GetTier(%q): got %q, want bronze", id, got.ID)
		}
	}
	if got := GetTier("gold"); got.ID != "gold" || got.PriceUSD != 350000 {
		t.Errorf("GetTier(gold): got %+v", got)
	}
}

func TestBenefitTemplatesPerTier(t *testing.T) {
	tests := []struct {
		tier    string
		count   int
		listing string
	}{
		{"bronze", 3, "standard"},
		{"silver", 4, "featured"},
		{"gold", 5, "featured"},
		{"platinum", 6, "premium"},
		{"unknown", 3, "standard"},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			templates := BenefitTemplates(tt.tier)
			if len(templates) != tt.count {
				t.Fatalf("count: got %d, want %d", len(templates), tt.count)
			}

			seen := make(map[string]string, len(templates))
			for _, tmpl := range templates {
				if _, dup := seen[tmpl.Name]; dup {
					t.Errorf("duplicate benefit %q", tmpl.Name)
				}
				seen[tmpl.Name] = tmpl.Value
			}

			if seen["directory_listing"] != tt.listing {
				t.Errorf("directory_listing: got %q, want %q", seen["directory_listing"], tt.listing)
			}
			for _, name := range []string{"employee_discounts", "impact_dashboard"} {
				if _, ok := seen[name]; !ok {
					t.Errorf("missing base benefit %q", name)
				}
			}
		})
	}
}
