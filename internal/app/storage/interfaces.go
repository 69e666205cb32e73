// Package storage defines the persistence contracts shared by the Postgres
// and in-memory implementations.
package storage

import (
	"context"
	"errors"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// JarStore persists jars, their balance samples and albums.
//
// ListJars resolves each jar's latest sample as a set operation over the
// whole candidate collection; implementations must not fall back to per-jar
// lookups.
type JarStore interface {
	// CreateJar writes the jar, its tag links and its album in one
	// transaction. Tags must already be resolved to catalog entries.
	CreateJar(ctx context.Context, j jar.Jar, tags []jar.Tag, album []jar.AlbumImage) (jar.Jar, error)
	// UpdateJar persists mutable fields and replaces tag links in one
	// transaction. DateAdded, DateClosed and ExternalID are never touched.
	UpdateJar(ctx context.Context, j jar.Jar, tags []jar.Tag) (jar.Jar, error)
	GetJar(ctx context.Context, id string) (jar.Jar, error)
	// GetJarSummary returns the jar with its derived current sum and fill
	// percentage.
	GetJarSummary(ctx context.Context, id string) (jar.Summary, error)
	ListJars(ctx context.Context, f jar.Filter) ([]jar.Summary, error)
	// ListOpenJars returns jars with no close date, oldest first, for the
	// sync cycle.
	ListOpenJars(ctx context.Context) ([]jar.Jar, error)
	// ListBannerJars returns up to limit open jars in curated display
	// order.
	ListBannerJars(ctx context.Context, limit int) ([]jar.Summary, error)
	// DeleteJar removes the jar; samples, tag links and album rows cascade.
	DeleteJar(ctx context.Context, id string) error

	// RecordSyncResult applies one provider observation: it updates the
	// jar's goal and close state and appends the new balance sample, all
	// in a single transaction. The income delta is computed against the
	// jar's previous latest sample inside that transaction.
	RecordSyncResult(ctx context.Context, jarID string, upd jar.SyncUpdate) (jar.BalanceSample, error)
	ListSamples(ctx context.Context, jarID string) ([]jar.BalanceSample, error)

	ListAlbum(ctx context.Context, jarID string) ([]jar.AlbumImage, error)
	AddAlbumImage(ctx context.Context, img jar.AlbumImage) (jar.AlbumImage, error)
}

// TagStore persists the tag catalog.
type TagStore interface {
	CreateTag(ctx context.Context, t jar.Tag) (jar.Tag, error)
	GetTagByName(ctx context.Context, name string) (jar.Tag, error)
	ListTags(ctx context.Context) ([]jar.Tag, error)
	DeleteTag(ctx context.Context, id string) error
}

// VolunteerStore persists volunteer accounts.
type VolunteerStore interface {
	CreateVolunteer(ctx context.Context, v volunteer.Volunteer) (volunteer.Volunteer, error)
	UpdateVolunteer(ctx context.Context, v volunteer.Volunteer) (volunteer.Volunteer, error)
	GetVolunteer(ctx context.Context, id string) (volunteer.Volunteer, error)
	GetVolunteerByEmail(ctx context.Context, email string) (volunteer.Volunteer, error)
	ListVolunteers(ctx context.Context) ([]volunteer.Volunteer, error)
	DeleteVolunteer(ctx context.Context, id string) error
}
