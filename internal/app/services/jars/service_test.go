package jars

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
	"github.com/zcy-charity/jar-service/internal/app/storage"
	"github.com/zcy-charity/jar-service/internal/app/storage/memory"
	"github.com/zcy-charity/jar-service/internal/blobstore"
)

func int64p(v int64) *int64 { return &v }

type fixture struct {
	svc   *Service
	store *memory.Store
	blobs *blobstore.Memory
	actor volunteer.Volunteer
}

func newFixture(t *testing.T, active bool) fixture {
	t.Helper()
	store := memory.New()
	blobs := blobstore.NewMemory()
	v, err := store.CreateVolunteer(context.Background(), volunteer.Volunteer{
		Email:        "helper@example.com",
		PasswordHash: "x",
		PublicName:   "Helper",
		Active:       active,
	})
	if err != nil {
		t.Fatalf("create volunteer: %v", err)
	}
	return fixture{
		svc:   New(store, store, store, blobs, nil),
		store: store,
		blobs: blobs,
		actor: v,
	}
}

func validInput() CreateInput {
	return CreateInput{
		ExternalID: "abcdefghij",
		Title:      "drone fundraiser",
		Goal:       int64p(100000),
	}
}

func TestCreateJar(t *testing.T) {
	f := newFixture(t, true)
	j, err := f.svc.Create(context.Background(), f.actor.ID, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.Title != "Drone fundraiser" {
		t.Fatalf("title should be capitalised, got %q", j.Title)
	}
	if j.Closed() {
		t.Fatal("new jar must be open")
	}
	if j.VolunteerID != f.actor.ID {
		t.Fatalf("jar should belong to the actor, got %s", j.VolunteerID)
	}
}

func TestCreateJarValidation(t *testing.T) {
	f := newFixture(t, true)
	cases := []struct {
		name  string
		build func(CreateInput) CreateInput
		field string
	}{
		{"short external id", func(in CreateInput) CreateInput { in.ExternalID = "short"; return in }, "external_id"},
		{"long external id", func(in CreateInput) CreateInput { in.ExternalID = strings.Repeat("a", 32); return in }, "external_id"},
		{"bad external id chars", func(in CreateInput) CreateInput { in.ExternalID = "abc def ghi!"; return in }, "external_id"},
		{"short title", func(in CreateInput) CreateInput { in.Title = "hi"; return in }, "title"},
		{"long title", func(in CreateInput) CreateInput { in.Title = strings.Repeat("a", 101); return in }, "title"},
		{"negative goal", func(in CreateInput) CreateInput { in.Goal = int64p(-5); return in }, "goal"},
		{"long img alt", func(in CreateInput) CreateInput { in.ImgAlt = strings.Repeat("a", 201); return in }, "img_alt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.actor.ID, tc.build(validInput()))
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
			}
		})
	}
}

func TestZeroGoalAccepted(t *testing.T) {
	f := newFixture(t, true)
	in := validInput()
	in.Goal = int64p(0)
	j, err := f.svc.Create(context.Background(), f.actor.ID, in)
	if err != nil {
		t.Fatalf("a zero goal is valid, got %v", err)
	}
	if j.Goal == nil || *j.Goal != 0 {
		t.Fatalf("goal should be stored as 0, got %v", j.Goal)
	}

	// A zero goal never yields a fill percentage.
	sum, err := f.svc.GetSummary(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.FillPercentage != nil {
		t.Fatalf("fill percentage must stay undefined, got %v", *sum.FillPercentage)
	}

	if _, err := f.svc.Update(context.Background(), f.actor.ID, j.ID, UpdateInput{Goal: int64p(0)}); err != nil {
		t.Fatalf("updating to a zero goal is valid, got %v", err)
	}
	var vErr *ValidationError
	if _, err := f.svc.Update(context.Background(), f.actor.ID, j.ID, UpdateInput{Goal: int64p(-1)}); !errors.As(err, &vErr) {
		t.Fatalf("a negative goal must be rejected, got %v", err)
	}
}

func TestCreateJarRequiresActiveVolunteer(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.svc.Create(context.Background(), f.actor.ID, validInput()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for inactive volunteer, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), "unknown", validInput()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for unknown actor, got %v", err)
	}
}

func TestCreateJarSkipsUnknownTags(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.svc.CreateTag(context.Background(), f.actor.ID, "army"); err != nil {
		t.Fatalf("create tag: %v", err)
	}

	in := validInput()
	in.Tags = []string{"Army", "nonexistent", "army"}
	j, err := f.svc.Create(context.Background(), f.actor.ID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(j.Tags) != 1 || j.Tags[0] != "army" {
		t.Fatalf("unknown tags should be skipped and names lower-cased, got %v", j.Tags)
	}
}

func TestCreateJarUploadsImages(t *testing.T) {
	f := newFixture(t, true)
	in := validInput()
	in.TitleImage = &Upload{Name: "cover.jpg", ContentType: "image/jpeg", Body: strings.NewReader("img")}
	in.Album = []Upload{
		{Name: "one.png", ContentType: "image/png", Body: strings.NewReader("a"), Alt: "first"},
		{Name: "two.png", ContentType: "image/png", Body: strings.NewReader("b")},
	}

	j, err := f.svc.Create(context.Background(), f.actor.ID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(j.TitleImgRef, blobstore.FolderTitleImages+"/") {
		t.Fatalf("unexpected title image ref %q", j.TitleImgRef)
	}
	if f.blobs.Len() != 3 {
		t.Fatalf("expected 3 stored blobs, got %d", f.blobs.Len())
	}

	album, err := f.svc.Album(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("album: %v", err)
	}
	if len(album) != 2 || album[0].ImgAlt != "first" || album[0].Position != 0 {
		t.Fatalf("unexpected album %+v", album)
	}
}

func TestDeleteJarReleasesBlobs(t *testing.T) {
	f := newFixture(t, true)
	in := validInput()
	in.TitleImage = &Upload{Name: "cover.jpg", ContentType: "image/jpeg", Body: strings.NewReader("img")}
	in.Album = []Upload{{Name: "one.png", ContentType: "image/png", Body: strings.NewReader("a")}}

	j, err := f.svc.Create(context.Background(), f.actor.ID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.actor.ID, j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("all blobs should be released after deletion, %d left", f.blobs.Len())
	}
	if _, err := f.svc.Get(context.Background(), j.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateJarReplacesTitleImage(t *testing.T) {
	f := newFixture(t, true)
	in := validInput()
	in.TitleImage = &Upload{Name: "old.jpg", ContentType: "image/jpeg", Body: strings.NewReader("old")}
	j, err := f.svc.Create(context.Background(), f.actor.ID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldRef := j.TitleImgRef

	updated, err := f.svc.Update(context.Background(), f.actor.ID, j.ID, UpdateInput{
		TitleImage: &Upload{Name: "new.jpg", ContentType: "image/jpeg", Body: strings.NewReader("new")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TitleImgRef == oldRef {
		t.Fatal("title image ref should change")
	}
	if f.blobs.Has(oldRef) {
		t.Fatal("replaced title image should be released")
	}
	if !f.blobs.Has(updated.TitleImgRef) {
		t.Fatal("new title image should be stored")
	}
}

func TestUpdateJarPartialFields(t *testing.T) {
	f := newFixture(t, true)
	j, err := f.svc.Create(context.Background(), f.actor.ID, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	desc := "now with details"
	updated, err := f.svc.Update(context.Background(), f.actor.ID, j.ID, UpdateInput{Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != desc {
		t.Fatalf("description not updated: %q", updated.Description)
	}
	if updated.Title != j.Title {
		t.Fatalf("title must be untouched, got %q", updated.Title)
	}
	if updated.Goal == nil || *updated.Goal != *j.Goal {
		t.Fatalf("goal must be untouched, got %v", updated.Goal)
	}
}

func TestTagCatalog(t *testing.T) {
	f := newFixture(t, true)

	tag, err := f.svc.CreateTag(context.Background(), f.actor.ID, "  Medical  ")
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if tag.Name != "medical" {
		t.Fatalf("tag name should be trimmed and lower-cased, got %q", tag.Name)
	}

	if _, err := f.svc.CreateTag(context.Background(), f.actor.ID, "a"); err == nil {
		t.Fatal("single character tag should be rejected")
	}
	if _, err := f.svc.CreateTag(context.Background(), f.actor.ID, strings.Repeat("a", 51)); err == nil {
		t.Fatal("oversized tag should be rejected")
	}

	in := validInput()
	in.Tags = []string{"medical"}
	j, err := f.svc.Create(context.Background(), f.actor.ID, in)
	if err != nil {
		t.Fatalf("create jar: %v", err)
	}
	if len(j.Tags) != 1 {
		t.Fatalf("jar should carry the tag, got %v", j.Tags)
	}

	if err := f.svc.DeleteTag(context.Background(), f.actor.ID, tag.ID); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
	got, err := f.svc.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get jar: %v", err)
	}
	if len(got.Tags) != 0 {
		t.Fatalf("deleting a tag should unlink it from jars, got %v", got.Tags)
	}
}

func TestListDefaultsToNewestFirst(t *testing.T) {
	f := newFixture(t, true)
	for _, id := range []string{"aaaaaaaaaa", "bbbbbbbbbb"} {
		in := validInput()
		in.ExternalID = id
		if _, err := f.svc.Create(context.Background(), f.actor.ID, in); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	list, err := f.svc.List(context.Background(), jar.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 jars, got %d", len(list))
	}
	if !list[0].DateAdded.After(list[1].DateAdded) && !list[0].DateAdded.Equal(list[1].DateAdded) {
		t.Fatal("default ordering should be newest first")
	}
}
