package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
	"github.com/zcy-charity/jar-service/internal/app/storage"
)

func int64p(v int64) *int64 { return &v }

func seedVolunteer(t *testing.T, s *Store) volunteer.Volunteer {
	t.Helper()
	v, err := s.CreateVolunteer(context.Background(), volunteer.Volunteer{
		Email:        "helper@example.com",
		PasswordHash: "x",
		PublicName:   "Helper",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create volunteer: %v", err)
	}
	return v
}

func mustCreateJar(t *testing.T, s *Store, volunteerID, externalID string, goal *int64, added time.Time) jar.Jar {
	t.Helper()
	j, err := s.CreateJar(context.Background(), jar.Jar{
		ExternalID:  externalID,
		Title:       "Jar " + externalID,
		VolunteerID: volunteerID,
		Goal:        goal,
		DateAdded:   added,
	}, nil, nil)
	if err != nil {
		t.Fatalf("create jar %s: %v", externalID, err)
	}
	return j
}

func record(t *testing.T, s *Store, jarID string, amount int64) {
	t.Helper()
	_, err := s.RecordSyncResult(context.Background(), jarID, jar.SyncUpdate{
		Amount:     int64p(amount),
		ObservedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("record sync result: %v", err)
	}
}

func TestFillOrderingNullsLast(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	half := mustCreateJar(t, s, v.ID, "aaaaaaaaaa", int64p(1000), base)
	record(t, s, half.ID, 500) // 50%
	full := mustCreateJar(t, s, v.ID, "bbbbbbbbbb", int64p(1000), base.Add(time.Hour))
	record(t, s, full.ID, 1000) // 100%
	noGoal := mustCreateJar(t, s, v.ID, "cccccccccc", nil, base.Add(2*time.Hour))
	record(t, s, noGoal.ID, 300) // no percentage
	noSample := mustCreateJar(t, s, v.ID, "dddddddddd", int64p(1000), base.Add(3*time.Hour))

	asc, err := s.ListJars(context.Background(), jar.Filter{Ordering: jar.OrderFillAsc})
	if err != nil {
		t.Fatalf("list asc: %v", err)
	}
	assertOrder(t, asc, half.ID, full.ID)

	desc, err := s.ListJars(context.Background(), jar.Filter{Ordering: jar.OrderFillDesc})
	if err != nil {
		t.Fatalf("list desc: %v", err)
	}
	assertOrder(t, desc, full.ID, half.ID)

	// Jars without a percentage come last in both directions.
	for _, list := range [][]jar.Summary{asc, desc} {
		tail := map[string]bool{noGoal.ID: true, noSample.ID: true}
		if !tail[list[2].ID] || !tail[list[3].ID] {
			t.Fatalf("jars without fill percentage must sort last, got %s, %s", list[2].ID, list[3].ID)
		}
	}
}

func assertOrder(t *testing.T, list []jar.Summary, first, second string) {
	t.Helper()
	if len(list) < 2 {
		t.Fatalf("expected at least 2 jars, got %d", len(list))
	}
	if list[0].ID != first || list[1].ID != second {
		t.Fatalf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestDateOrdering(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := mustCreateJar(t, s, v.ID, "aaaaaaaaaa", nil, base)
	recent := mustCreateJar(t, s, v.ID, "bbbbbbbbbb", nil, base.Add(time.Hour))

	def, err := s.ListJars(context.Background(), jar.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertOrder(t, def, recent.ID, old.ID)

	asc, err := s.ListJars(context.Background(), jar.Filter{Ordering: jar.OrderDateAsc})
	if err != nil {
		t.Fatalf("list asc: %v", err)
	}
	assertOrder(t, asc, old.ID, recent.ID)
}

func TestSearchAndTagFilterCompose(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	base := time.Now().UTC()

	tag, err := s.CreateTag(context.Background(), jar.Tag{Name: "army"})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	drone, err := s.CreateJar(context.Background(), jar.Jar{
		ExternalID: "aaaaaaaaaa", Title: "Drone fundraiser", VolunteerID: v.ID, DateAdded: base,
	}, []jar.Tag{tag}, nil)
	if err != nil {
		t.Fatalf("create jar: %v", err)
	}
	if _, err := s.CreateJar(context.Background(), jar.Jar{
		ExternalID: "bbbbbbbbbb", Title: "Drone repairs", VolunteerID: v.ID, DateAdded: base,
	}, nil, nil); err != nil {
		t.Fatalf("create jar: %v", err)
	}

	list, err := s.ListJars(context.Background(), jar.Filter{Search: "DRONE", Tag: "army"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != drone.ID {
		t.Fatalf("filters must compose conjunctively, got %d results", len(list))
	}
	if list[0].VolunteerName != "Helper" {
		t.Fatalf("summary should carry the volunteer name, got %q", list[0].VolunteerName)
	}
}

func TestRecordSyncResultDeltaChain(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	j := mustCreateJar(t, s, v.ID, "aaaaaaaaaa", int64p(1000), time.Now().UTC())

	first, err := s.RecordSyncResult(context.Background(), j.ID, jar.SyncUpdate{Amount: int64p(200), ObservedAt: time.Now()})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.IncomeDelta != 200 {
		t.Fatalf("first delta should treat prior amount as 0, got %d", first.IncomeDelta)
	}

	second, err := s.RecordSyncResult(context.Background(), j.ID, jar.SyncUpdate{Amount: int64p(150), ObservedAt: time.Now()})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if second.IncomeDelta != -50 {
		t.Fatalf("delta may be negative, got %d", second.IncomeDelta)
	}
	if second.ID <= first.ID {
		t.Fatal("sample ids must increase")
	}
}

func TestRecordSyncResultGoalAndClose(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	j := mustCreateJar(t, s, v.ID, "aaaaaaaaaa", int64p(1000), time.Now().UTC())

	closeAt := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	_, err := s.RecordSyncResult(context.Background(), j.ID, jar.SyncUpdate{
		Goal:       int64p(5000),
		CloseAt:    &closeAt,
		Amount:     int64p(100),
		ObservedAt: closeAt,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.GetJar(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Goal == nil || *got.Goal != 5000 {
		t.Fatalf("goal should be overwritten, got %v", got.Goal)
	}
	if got.DateClosed == nil || !got.DateClosed.Equal(closeAt) {
		t.Fatalf("jar should be closed at %v, got %v", closeAt, got.DateClosed)
	}

	// A later close attempt must not move the close date.
	later := closeAt.Add(24 * time.Hour)
	if _, err := s.RecordSyncResult(context.Background(), j.ID, jar.SyncUpdate{
		CloseAt: &later, Amount: int64p(100), ObservedAt: later,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ = s.GetJar(context.Background(), j.ID)
	if !got.DateClosed.Equal(closeAt) {
		t.Fatal("close date is set exactly once")
	}
}

func TestBannerJars(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		j, err := s.CreateJar(context.Background(), jar.Jar{
			ExternalID:   string(rune('a'+i)) + "aaaaaaaaa",
			Title:        "Banner jar",
			VolunteerID:  v.ID,
			DisplayOrder: 10 - i,
			DateAdded:    base.Add(time.Duration(i) * time.Hour),
		}, nil, nil)
		if err != nil {
			t.Fatalf("create jar: %v", err)
		}
		if i == 9 {
			closeAt := base.Add(100 * time.Hour)
			if _, err := s.RecordSyncResult(context.Background(), j.ID, jar.SyncUpdate{
				CloseAt: &closeAt, Amount: int64p(0), ObservedAt: closeAt,
			}); err != nil {
				t.Fatalf("close jar: %v", err)
			}
		}
	}

	banner, err := s.ListBannerJars(context.Background(), 8)
	if err != nil {
		t.Fatalf("banner: %v", err)
	}
	if len(banner) != 8 {
		t.Fatalf("banner should cap at 8 jars, got %d", len(banner))
	}
	for i := 1; i < len(banner); i++ {
		if banner[i-1].DisplayOrder > banner[i].DisplayOrder {
			t.Fatal("banner should be sorted by display order")
		}
	}
	for _, b := range banner {
		if b.Closed() {
			t.Fatal("closed jars never appear in the banner")
		}
	}
}

func TestDeleteCascades(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	j := mustCreateJar(t, s, v.ID, "aaaaaaaaaa", nil, time.Now().UTC())
	record(t, s, j.ID, 100)

	if err := s.DeleteJar(context.Background(), j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.ListSamples(context.Background(), j.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("samples should cascade, got %v", err)
	}

	j2 := mustCreateJar(t, s, v.ID, "bbbbbbbbbb", nil, time.Now().UTC())
	if err := s.DeleteVolunteer(context.Background(), v.ID); err != nil {
		t.Fatalf("delete volunteer: %v", err)
	}
	if _, err := s.GetJar(context.Background(), j2.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("volunteer deletion should remove their jars, got %v", err)
	}
}

func TestDuplicateExternalID(t *testing.T) {
	s := New()
	v := seedVolunteer(t, s)
	mustCreateJar(t, s, v.ID, "aaaaaaaaaa", nil, time.Now().UTC())
	_, err := s.CreateJar(context.Background(), jar.Jar{
		ExternalID: "aaaaaaaaaa", Title: "Duplicate", VolunteerID: v.ID,
	}, nil, nil)
	if err == nil {
		t.Fatal("duplicate external id must be rejected")
	}
}
