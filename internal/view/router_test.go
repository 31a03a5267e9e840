package view

import "testing"

func TestWarmStores(t *testing.T) {
	cases := []struct {
		tab  Tab
		want []string
	}{
		{TabRequests, []string{StoreRequests, StorePartners}},
		{TabHistory, []string{StoreHistory, StorePartners}},
		{TabReporting, []string{StoreStats, StorePartners}},
		{TabPartners, []string{StorePartners}},
	}
	for _, tc := range cases {
		got := WarmStores(tc.tab)
		if len(got) != len(tc.want) {
			t.Fatalf("tab %s: got %v, want %v", tc.tab, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("tab %s: got %v, want %v", tc.tab, got, tc.want)
			}
		}
	}
}

func TestPartnersWarmedOnEveryTab(t *testing.T) {
	for tab := range warmStores {
		found := false
		for _, name := range WarmStores(tab) {
			if name == StorePartners {
				found = true
			}
		}
		if !found {
			t.Fatalf("tab %s does not keep the partner directory warm", tab)
		}
	}
}

func TestRouterSetActive(t *testing.T) {
	r := NewRouter()
	if r.Active() != TabRequests {
		t.Fatalf("expected requests as initial tab, got %s", r.Active())
	}
	if err := r.SetActive(TabReporting); err != nil {
		t.Fatal(err)
	}
	if r.Active() != TabReporting {
		t.Fatalf("tab not switched: %s", r.Active())
	}
	if err := r.SetActive(Tab("settings")); err == nil {
		t.Fatalf("expected error for unknown tab")
	}
	if r.Active() != TabReporting {
		t.Fatalf("failed switch must not change the active tab")
	}
}
