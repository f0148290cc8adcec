package merge

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/pauljones0/production-scout/internal/classifier"
	"github.com/pauljones0/production-scout/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	n := 0
	return New(
		WithIDFunc(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestMerge_ScenarioCreatureFeature(t *testing.T) {
	e := newTestEngine()
	incoming := []models.RawPosting{
		{Title: "A", Budget: "$15M", Description: "creature work, 500+ shots"},
	}

	catalog, added := e.Merge(nil, incoming, "productionhub")
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if len(catalog) != 1 {
		t.Fatalf("catalog has %d postings, want 1", len(catalog))
	}
	got := catalog[0]
	if got.Tier != models.Tier1 {
		t.Errorf("Tier = %s, want tier1", got.Tier)
	}
	if got.VfxNeeds != models.VfxExtreme {
		t.Errorf("VfxNeeds = %s, want Extreme", got.VfxNeeds)
	}
	if got.ID != "id-1" || got.Source != "productionhub" || !got.ScrapedAt.Equal(fixedNow) {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.CrossSourceData["productionhub"] != "creature work, 500+ shots" {
		t.Errorf("CrossSourceData = %v", got.CrossSourceData)
	}
}

func TestMerge_ScenarioMotionGraphics(t *testing.T) {
	catalog, added := newTestEngine().Merge(nil, []models.RawPosting{
		{Title: "B", Budget: "$80K", Description: "motion graphics"},
	}, "mandy")
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if catalog[0].Tier != models.Tier4 || catalog[0].VfxNeeds != models.VfxLow {
		t.Errorf("got tier=%s vfx=%s, want tier4/Low", catalog[0].Tier, catalog[0].VfxNeeds)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	e := newTestEngine()
	existing := []models.Posting{{ID: "old", Title: "Existing Show"}}
	batch := []models.RawPosting{
		{Title: "Existing Show", Description: "green screen"},
		{Title: "New Feature", Description: "vfx"},
		{Title: "Another", Description: "cgi", Budget: "$2M"},
	}

	first, _ := e.Merge(existing, batch, "src")
	second, added := e.Merge(first, batch, "src")
	if added != 0 {
		t.Errorf("second merge added %d, want 0", added)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("second merge changed the catalog")
	}
}

func TestMerge_PreservesExistingVerbatim(t *testing.T) {
	existing := []models.Posting{{
		ID:                "keep-me",
		Title:             "The Long Night",
		Description:       "original text",
		Budget:            "$500K",
		Tier:              models.Tier3,
		VfxNeeds:          models.VfxLow,
		VfxNeedsRationale: "Low: no VFX indicators found in description, defaulted",
		Source:            "mandy",
		CrossSourceData:   map[string]string{"mandy": "original text"},
	}}
	snapshot := make([]models.Posting, len(existing))
	copy(snapshot, existing)

	catalog, added := newTestEngine().Merge(existing, []models.RawPosting{
		{Title: "The Long Night", Description: "full cgi, heavy vfx", Budget: "$50M"},
	}, "productionhub")

	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	if !reflect.DeepEqual(catalog, snapshot) {
		t.Errorf("existing entry altered: %+v", catalog[0])
	}
	if !reflect.DeepEqual(existing, snapshot) {
		t.Error("input slice was modified")
	}
}

func TestMerge_AddedCountMatchesAbsentTitles(t *testing.T) {
	existing := []models.Posting{{Title: "One"}, {Title: "Two"}}
	tests := []struct {
		name     string
		incoming []models.RawPosting
		want     int
	}{
		{"empty batch", nil, 0},
		{"all present", []models.RawPosting{{Title: "One"}, {Title: "Two"}}, 0},
		{"all new", []models.RawPosting{{Title: "Three"}, {Title: "Four"}}, 2},
		{"mixed", []models.RawPosting{{Title: "One"}, {Title: "Three"}}, 1},
		{"in-batch duplicate", []models.RawPosting{{Title: "Three"}, {Title: "Three"}}, 1},
		{"case sensitive", []models.RawPosting{{Title: "one"}, {Title: "ONE"}}, 2},
		{"no trimming", []models.RawPosting{{Title: "One "}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, added := newTestEngine().Merge(existing, tt.incoming, "src")
			if added != tt.want {
				t.Errorf("added = %d, want %d", added, tt.want)
			}
			if len(catalog) != len(existing)+tt.want {
				t.Errorf("catalog size = %d, want %d", len(catalog), len(existing)+tt.want)
			}
			if want := len(Absent(existing, tt.incoming)); want != added {
				t.Errorf("Absent() = %d, Merge added %d", want, added)
			}
		})
	}
}

func TestMerge_FirstSeenWinsWithinBatch(t *testing.T) {
	catalog, _ := newTestEngine().Merge(nil, []models.RawPosting{
		{Title: "Dup", Description: "motion graphics"},
		{Title: "Dup", Description: "creature work"},
	}, "src")
	if len(catalog) != 1 || catalog[0].VfxNeeds != models.VfxLow {
		t.Errorf("expected the first Dup to win, got %+v", catalog)
	}
}

func TestMerge_MalformedPostingDoesNotBlockBatch(t *testing.T) {
	catalog, added := newTestEngine().Merge(nil, []models.RawPosting{
		{Title: "No Description", Budget: "$20M"},
		{Title: "Good", Description: "visual effects", Budget: "$3M"},
	}, "src")

	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	bad := catalog[0]
	if bad.VfxNeeds != models.VfxLow || bad.Tier != models.Tier4 || bad.VfxNeedsRationale != classifier.InsufficientData {
		t.Errorf("malformed posting classified as %s/%s %q", bad.VfxNeeds, bad.Tier, bad.VfxNeedsRationale)
	}
	good := catalog[1]
	if good.VfxNeeds != models.VfxHigh || good.Tier != models.Tier2 {
		t.Errorf("good posting classified as %s/%s", good.VfxNeeds, good.Tier)
	}
}

func TestMerge_UniqueIDs(t *testing.T) {
	catalog, _ := Merge(nil, []models.RawPosting{
		{Title: "X", Description: "vfx"},
		{Title: "Y", Description: "vfx"},
	}, "src")
	if catalog[0].ID == "" || catalog[0].ID == catalog[1].ID {
		t.Errorf("ids not unique: %q %q", catalog[0].ID, catalog[1].ID)
	}
}

func TestMerge_BudgetExtractedFromDescription(t *testing.T) {
	catalog, _ := newTestEngine().Merge(nil, []models.RawPosting{
		{Title: "Pilot", Description: "Compositing team wanted. Budget $4.5M."},
	}, "src")
	if catalog[0].Budget != "$4.5M" || catalog[0].Tier != models.Tier2 {
		t.Errorf("budget = %q tier = %s", catalog[0].Budget, catalog[0].Tier)
	}
}
