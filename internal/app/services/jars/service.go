// Package jars implements jar management: creation, updates, listings and
// the image album.
package jars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/storage"
	"github.com/zcy-charity/jar-service/internal/blobstore"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,31}$`)

const bannerLimit = 8

// Upload is one image received from a client.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
	Alt         string
}

// CreateInput carries the fields for a new jar.
type CreateInput struct {
	ExternalID   string
	Title        string
	Description  string
	Goal         *int64
	ImgAlt       string
	DisplayOrder int
	Tags         []string
	TitleImage   *Upload
	Album        []Upload
}

// UpdateInput carries a partial jar update. Nil fields keep their stored
// values.
type UpdateInput struct {
	Title        *string
	Description  *string
	Goal         *int64
	ImgAlt       *string
	DisplayOrder *int
	Tags         []string
	TitleImage   *Upload
}

// Service manages jars on behalf of volunteers.
type Service struct {
	jars       storage.JarStore
	tags       storage.TagStore
	volunteers storage.VolunteerStore
	blobs      blobstore.Store
	log        *logger.Logger
}

// New creates the jar service.
func New(jarStore storage.JarStore, tagStore storage.TagStore, volunteerStore storage.VolunteerStore, blobs blobstore.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jars")
	}
	return &Service{
		jars:       jarStore,
		tags:       tagStore,
		volunteers: volunteerStore,
		blobs:      blobs,
		log:        log,
	}
}

// Create validates the input, uploads the images and writes the jar. The
// acting volunteer must be active. Tag names that have no catalog entry are
// skipped.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (jar.Jar, error) {
	if err := s.requireActive(ctx, actorID); err != nil {
		return jar.Jar{}, err
	}
	if !externalIDPattern.MatchString(in.ExternalID) {
		return jar.Jar{}, invalid("external_id", "must be 10 to 31 characters of letters, digits, underscore or dash")
	}
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return jar.Jar{}, err
	}
	if in.Goal != nil && *in.Goal < 0 {
		return jar.Jar{}, invalid("goal", "must not be negative")
	}
	if utf8.RuneCountInString(in.ImgAlt) > 200 {
		return jar.Jar{}, invalid("img_alt", "must be at most 200 characters")
	}

	tags, err := s.resolveTags(ctx, in.Tags)
	if err != nil {
		return jar.Jar{}, err
	}

	j := jar.Jar{
		ExternalID:   in.ExternalID,
		Title:        title,
		Description:  in.Description,
		VolunteerID:  actorID,
		Goal:         in.Goal,
		ImgAlt:       in.ImgAlt,
		DisplayOrder: in.DisplayOrder,
	}

	// Uploaded blobs are tracked so they can be released if the database
	// write does not commit.
	var uploaded []string
	cleanup := func() {
		for _, ref := range uploaded {
			if err := s.blobs.Release(ctx, ref); err != nil {
				s.log.WithError(err).WithField("ref", ref).Warn("failed to release orphaned blob")
			}
		}
	}

	if in.TitleImage != nil {
		ref, err := s.blobs.Put(ctx, blobstore.FolderTitleImages, in.TitleImage.Name, in.TitleImage.ContentType, in.TitleImage.Body)
		if err != nil {
			return jar.Jar{}, fmt.Errorf("upload title image: %w", err)
		}
		uploaded = append(uploaded, ref)
		j.TitleImgRef = ref
	}

	var album []jar.AlbumImage
	for _, up := range in.Album {
		ref, err := s.blobs.Put(ctx, blobstore.FolderAlbums, up.Name, up.ContentType, up.Body)
		if err != nil {
			cleanup()
			return jar.Jar{}, fmt.Errorf("upload album image: %w", err)
		}
		uploaded = append(uploaded, ref)
		album = append(album, jar.AlbumImage{ImgRef: ref, ImgAlt: up.Alt})
	}

	created, err := s.jars.CreateJar(ctx, j, tags, album)
	if err != nil {
		cleanup()
		return jar.Jar{}, fmt.Errorf("create jar: %w", err)
	}
	s.log.WithField("jar_id", created.ID).WithField("external_id", created.ExternalID).Info("jar created")
	return created, nil
}

// Update applies a partial update. A replaced title image is released only
// after the database write commits.
func (s *Service) Update(ctx context.Context, actorID, jarID string, in UpdateInput) (jar.Jar, error) {
	if err := s.requireActive(ctx, actorID); err != nil {
		return jar.Jar{}, err
	}
	current, err := s.jars.GetJar(ctx, jarID)
	if err != nil {
		return jar.Jar{}, err
	}

	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return jar.Jar{}, err
		}
		current.Title = title
	}
	if in.Description != nil {
		current.Description = *in.Description
	}
	if in.Goal != nil {
		if *in.Goal < 0 {
			return jar.Jar{}, invalid("goal", "must not be negative")
		}
		goal := *in.Goal
		current.Goal = &goal
	}
	if in.ImgAlt != nil {
		if utf8.RuneCountInString(*in.ImgAlt) > 200 {
			return jar.Jar{}, invalid("img_alt", "must be at most 200 characters")
		}
		current.ImgAlt = *in.ImgAlt
	}
	if in.DisplayOrder != nil {
		current.DisplayOrder = *in.DisplayOrder
	}

	tags, err := s.currentTags(ctx, current.Tags)
	if err != nil {
		return jar.Jar{}, err
	}
	if in.Tags != nil {
		tags, err = s.resolveTags(ctx, in.Tags)
		if err != nil {
			return jar.Jar{}, err
		}
	}

	previousRef := ""
	if in.TitleImage != nil {
		ref, err := s.blobs.Put(ctx, blobstore.FolderTitleImages, in.TitleImage.Name, in.TitleImage.ContentType, in.TitleImage.Body)
		if err != nil {
			return jar.Jar{}, fmt.Errorf("upload title image: %w", err)
		}
		previousRef = current.TitleImgRef
		current.TitleImgRef = ref
	}

	updated, err := s.jars.UpdateJar(ctx, current, tags)
	if err != nil {
		if in.TitleImage != nil {
			if relErr := s.blobs.Release(ctx, current.TitleImgRef); relErr != nil {
				s.log.WithError(relErr).Warn("failed to release orphaned blob")
			}
		}
		return jar.Jar{}, fmt.Errorf("update jar: %w", err)
	}
	if previousRef != "" {
		if err := s.blobs.Release(ctx, previousRef); err != nil {
			s.log.WithError(err).WithField("ref", previousRef).Warn("failed to release replaced title image")
		}
	}
	return updated, nil
}

// Delete removes the jar and, once the deletion has committed, releases its
// title image and album blobs.
func (s *Service) Delete(ctx context.Context, actorID, jarID string) error {
	if err := s.requireActive(ctx, actorID); err != nil {
		return err
	}
	j, err := s.jars.GetJar(ctx, jarID)
	if err != nil {
		return err
	}
	album, err := s.jars.ListAlbum(ctx, jarID)
	if err != nil {
		return err
	}
	if err := s.jars.DeleteJar(ctx, jarID); err != nil {
		return fmt.Errorf("delete jar: %w", err)
	}

	if j.TitleImgRef != "" {
		if err := s.blobs.Release(ctx, j.TitleImgRef); err != nil {
			s.log.WithError(err).WithField("ref", j.TitleImgRef).Warn("failed to release title image")
		}
	}
	for _, img := range album {
		if err := s.blobs.Release(ctx, img.ImgRef); err != nil {
			s.log.WithError(err).WithField("ref", img.ImgRef).Warn("failed to release album image")
		}
	}
	s.log.WithField("jar_id", jarID).Info("jar deleted")
	return nil
}

// Get returns one jar.
func (s *Service) Get(ctx context.Context, id string) (jar.Jar, error) {
	return s.jars.GetJar(ctx, id)
}

// GetSummary returns one jar with derived fields.
func (s *Service) GetSummary(ctx context.Context, id string) (jar.Summary, error) {
	return s.jars.GetJarSummary(ctx, id)
}

// List returns jar summaries matching the filter.
func (s *Service) List(ctx context.Context, f jar.Filter) ([]jar.Summary, error) {
	if f.Ordering == "" {
		f.Ordering = jar.OrderDefault
	}
	return s.jars.ListJars(ctx, f)
}

// Banner returns the open jars shown on the landing banner.
func (s *Service) Banner(ctx context.Context) ([]jar.Summary, error) {
	return s.jars.ListBannerJars(ctx, bannerLimit)
}

// Samples returns a jar's balance history, newest first.
func (s *Service) Samples(ctx context.Context, jarID string) ([]jar.BalanceSample, error) {
	return s.jars.ListSamples(ctx, jarID)
}

// Album returns a jar's album images in display position order.
func (s *Service) Album(ctx context.Context, jarID string) ([]jar.AlbumImage, error) {
	return s.jars.ListAlbum(ctx, jarID)
}

// AddAlbumImage uploads one image and appends it to the jar's album.
func (s *Service) AddAlbumImage(ctx context.Context, actorID, jarID string, up Upload) (jar.AlbumImage, error) {
	if err := s.requireActive(ctx, actorID); err != nil {
		return jar.AlbumImage{}, err
	}
	if _, err := s.jars.GetJar(ctx, jarID); err != nil {
		return jar.AlbumImage{}, err
	}
	ref, err := s.blobs.Put(ctx, blobstore.FolderAlbums, up.Name, up.ContentType, up.Body)
	if err != nil {
		return jar.AlbumImage{}, fmt.Errorf("upload album image: %w", err)
	}
	img, err := s.jars.AddAlbumImage(ctx, jar.AlbumImage{JarID: jarID, ImgRef: ref, ImgAlt: up.Alt})
	if err != nil {
		if relErr := s.blobs.Release(ctx, ref); relErr != nil {
			s.log.WithError(relErr).Warn("failed to release orphaned blob")
		}
		return jar.AlbumImage{}, fmt.Errorf("add album image: %w", err)
	}
	return img, nil
}

// ImageURL resolves a stored blob reference to its public URL.
func (s *Service) ImageURL(ref string) string {
	return s.blobs.URL(ref)
}

// requireActive rejects actors that do not exist or are not active
// volunteers.
func (s *Service) requireActive(ctx context.Context, actorID string) error {
	v, err := s.volunteers.GetVolunteer(ctx, actorID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrPermissionDenied
	}
	if err != nil {
		return fmt.Errorf("load volunteer: %w", err)
	}
	if !v.Active {
		return ErrPermissionDenied
	}
	return nil
}

// resolveTags maps names to catalog entries, silently dropping names that
// have no entry.
func (s *Service) resolveTags(ctx context.Context, names []string) ([]jar.Tag, error) {
	var tags []jar.Tag
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		t, err := s.tags.GetTagByName(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			s.log.WithField("tag", name).Debug("skipping unknown tag")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve tag %s: %w", name, err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func (s *Service) currentTags(ctx context.Context, names []string) ([]jar.Tag, error) {
	var tags []jar.Tag
	for _, name := range names {
		t, err := s.tags.GetTagByName(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve tag %s: %w", name, err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// normalizeTitle trims, length-checks and upper-cases the first rune.
func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(title)
	if n < 5 || n > 100 {
		return "", invalid("title", "must be 5 to 100 characters")
	}
	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:], nil
}
