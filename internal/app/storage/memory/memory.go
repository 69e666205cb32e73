// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
	"github.com/zcy-charity/jar-service/internal/app/storage"
)

// Store is an in-memory implementation of JarStore, TagStore and
// VolunteerStore.
type Store struct {
	mu           sync.RWMutex
	nextSampleID int64
	jars         map[string]jar.Jar
	jarTags      map[string][]string // jar id -> tag ids
	samples      map[string][]jar.BalanceSample
	albums       map[string][]jar.AlbumImage
	tags         map[string]jar.Tag
	volunteers   map[string]volunteer.Volunteer
}

var _ storage.JarStore = (*Store)(nil)
var _ storage.TagStore = (*Store)(nil)
var _ storage.VolunteerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextSampleID: 1,
		jars:         make(map[string]jar.Jar),
		jarTags:      make(map[string][]string),
		samples:      make(map[string][]jar.BalanceSample),
		albums:       make(map[string][]jar.AlbumImage),
		tags:         make(map[string]jar.Tag),
		volunteers:   make(map[string]volunteer.Volunteer),
	}
}

// JarStore implementation ------------------------------------------------------

func (s *Store) CreateJar(_ context.Context, j jar.Jar, tags []jar.Tag, album []jar.AlbumImage) (jar.Jar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jars {
		if existing.ExternalID == j.ExternalID {
			return jar.Jar{}, fmt.Errorf("jar with external id %s already exists", j.ExternalID)
		}
	}
	if _, ok := s.volunteers[j.VolunteerID]; !ok {
		return jar.Jar{}, fmt.Errorf("volunteer %s: %w", j.VolunteerID, storage.ErrNotFound)
	}

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if j.DateAdded.IsZero() {
		j.DateAdded = now
	}
	j.UpdatedAt = now
	j.DateClosed = nil

	tagIDs := make([]string, 0, len(tags))
	for _, t := range tags {
		tagIDs = append(tagIDs, t.ID)
	}
	s.jarTags[j.ID] = tagIDs
	j.Tags = s.tagNamesLocked(j.ID)

	for i, img := range album {
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		img.JarID = j.ID
		img.Position = i
		if img.DateAdded.IsZero() {
			img.DateAdded = now
		}
		s.albums[j.ID] = append(s.albums[j.ID], img)
	}

	s.jars[j.ID] = cloneJar(j)
	return j, nil
}

func (s *Store) UpdateJar(_ context.Context, j jar.Jar, tags []jar.Tag) (jar.Jar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.jars[j.ID]
	if !ok {
		return jar.Jar{}, fmt.Errorf("jar %s: %w", j.ID, storage.ErrNotFound)
	}

	j.ExternalID = original.ExternalID
	j.VolunteerID = original.VolunteerID
	j.DateAdded = original.DateAdded
	j.DateClosed = original.DateClosed
	j.UpdatedAt = time.Now().UTC()

	tagIDs := make([]string, 0, len(tags))
	for _, t := range tags {
		tagIDs = append(tagIDs, t.ID)
	}
	s.jarTags[j.ID] = tagIDs
	j.Tags = s.tagNamesLocked(j.ID)

	s.jars[j.ID] = cloneJar(j)
	return j, nil
}

func (s *Store) GetJar(_ context.Context, id string) (jar.Jar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jars[id]
	if !ok {
		return jar.Jar{}, fmt.Errorf("jar %s: %w", id, storage.ErrNotFound)
	}
	j.Tags = s.tagNamesLocked(id)
	return cloneJar(j), nil
}

func (s *Store) GetJarSummary(_ context.Context, id string) (jar.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jars[id]
	if !ok {
		return jar.Summary{}, fmt.Errorf("jar %s: %w", id, storage.ErrNotFound)
	}
	return s.summarizeLocked(j), nil
}

func (s *Store) ListJars(_ context.Context, f jar.Filter) ([]jar.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []jar.Summary
	for _, j := range s.jars {
		if f.Search != "" && !strings.Contains(strings.ToLower(j.Title), strings.ToLower(f.Search)) {
			continue
		}
		if f.Tag != "" && !s.jarHasTagLocked(j.ID, f.Tag) {
			continue
		}
		result = append(result, s.summarizeLocked(j))
	}

	orderSummaries(result, f.Ordering)
	return result, nil
}

func (s *Store) ListOpenJars(_ context.Context) ([]jar.Jar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []jar.Jar
	for _, j := range s.jars {
		if j.DateClosed != nil {
			continue
		}
		j.Tags = s.tagNamesLocked(j.ID)
		result = append(result, cloneJar(j))
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].DateAdded.Before(result[k].DateAdded)
	})
	return result, nil
}

func (s *Store) ListBannerJars(_ context.Context, limit int) ([]jar.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []jar.Summary
	for _, j := range s.jars {
		if j.DateClosed != nil {
			continue
		}
		result = append(result, s.summarizeLocked(j))
	}
	sort.Slice(result, func(i, k int) bool {
		if result[i].DisplayOrder != result[k].DisplayOrder {
			return result[i].DisplayOrder < result[k].DisplayOrder
		}
		return result[i].DateAdded.After(result[k].DateAdded)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteJar(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jars[id]; !ok {
		return fmt.Errorf("jar %s: %w", id, storage.ErrNotFound)
	}
	delete(s.jars, id)
	delete(s.jarTags, id)
	delete(s.samples, id)
	delete(s.albums, id)
	return nil
}

func (s *Store) RecordSyncResult(_ context.Context, jarID string, upd jar.SyncUpdate) (jar.BalanceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jars[jarID]
	if !ok {
		return jar.BalanceSample{}, fmt.Errorf("jar %s: %w", jarID, storage.ErrNotFound)
	}

	if upd.Goal != nil {
		goal := *upd.Goal
		j.Goal = &goal
	}
	if upd.CloseAt != nil && j.DateClosed == nil {
		closed := upd.CloseAt.UTC()
		j.DateClosed = &closed
	}
	j.UpdatedAt = time.Now().UTC()

	var prev int64
	if latest, ok := latestSample(s.samples[jarID]); ok && latest.Amount != nil {
		prev = *latest.Amount
	}
	var amount int64
	if upd.Amount != nil {
		amount = *upd.Amount
	}

	sample := jar.BalanceSample{
		ID:          s.nextSampleID,
		JarID:       jarID,
		IncomeDelta: amount - prev,
		ObservedAt:  upd.ObservedAt.UTC(),
	}
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = time.Now().UTC()
	}
	if upd.Amount != nil {
		v := *upd.Amount
		sample.Amount = &v
	} else {
		zero := int64(0)
		sample.Amount = &zero
	}
	s.nextSampleID++

	s.samples[jarID] = append(s.samples[jarID], sample)
	s.jars[jarID] = j
	return sample, nil
}

func (s *Store) ListSamples(_ context.Context, jarID string) ([]jar.BalanceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jars[jarID]; !ok {
		return nil, fmt.Errorf("jar %s: %w", jarID, storage.ErrNotFound)
	}
	samples := append([]jar.BalanceSample(nil), s.samples[jarID]...)
	sort.Slice(samples, func(i, k int) bool {
		if !samples[i].ObservedAt.Equal(samples[k].ObservedAt) {
			return samples[i].ObservedAt.After(samples[k].ObservedAt)
		}
		return samples[i].ID > samples[k].ID
	})
	return samples, nil
}

func (s *Store) ListAlbum(_ context.Context, jarID string) ([]jar.AlbumImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jars[jarID]; !ok {
		return nil, fmt.Errorf("jar %s: %w", jarID, storage.ErrNotFound)
	}
	return append([]jar.AlbumImage(nil), s.albums[jarID]...), nil
}

func (s *Store) AddAlbumImage(_ context.Context, img jar.AlbumImage) (jar.AlbumImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jars[img.JarID]; !ok {
		return jar.AlbumImage{}, fmt.Errorf("jar %s: %w", img.JarID, storage.ErrNotFound)
	}
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.DateAdded.IsZero() {
		img.DateAdded = time.Now().UTC()
	}
	img.Position = len(s.albums[img.JarID])
	s.albums[img.JarID] = append(s.albums[img.JarID], img)
	return img, nil
}

// TagStore implementation ------------------------------------------------------

func (s *Store) CreateTag(_ context.Context, t jar.Tag) (jar.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tags {
		if existing.Name == t.Name {
			return jar.Tag{}, fmt.Errorf("tag %s already exists", t.Name)
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.tags[t.ID] = t
	return t, nil
}

func (s *Store) GetTagByName(_ context.Context, name string) (jar.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tags {
		if t.Name == name {
			return t, nil
		}
	}
	return jar.Tag{}, fmt.Errorf("tag %s: %w", name, storage.ErrNotFound)
}

func (s *Store) ListTags(_ context.Context) ([]jar.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]jar.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		result = append(result, t)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result, nil
}

func (s *Store) DeleteTag(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[id]; !ok {
		return fmt.Errorf("tag %s: %w", id, storage.ErrNotFound)
	}
	delete(s.tags, id)
	for jarID, ids := range s.jarTags {
		kept := ids[:0]
		for _, tagID := range ids {
			if tagID != id {
				kept = append(kept, tagID)
			}
		}
		s.jarTags[jarID] = kept
	}
	return nil
}

// VolunteerStore implementation ------------------------------------------------

func (s *Store) CreateVolunteer(_ context.Context, v volunteer.Volunteer) (volunteer.Volunteer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.volunteers {
		if existing.Email == v.Email {
			return volunteer.Volunteer{}, fmt.Errorf("volunteer with email %s already exists", v.Email)
		}
		if v.PhoneNumber != "" && existing.PhoneNumber == v.PhoneNumber {
			return volunteer.Volunteer{}, fmt.Errorf("volunteer with phone %s already exists", v.PhoneNumber)
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.volunteers[v.ID] = v
	return v, nil
}

func (s *Store) UpdateVolunteer(_ context.Context, v volunteer.Volunteer) (volunteer.Volunteer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.volunteers[v.ID]
	if !ok {
		return volunteer.Volunteer{}, fmt.Errorf("volunteer %s: %w", v.ID, storage.ErrNotFound)
	}
	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	s.volunteers[v.ID] = v
	return v, nil
}

func (s *Store) GetVolunteer(_ context.Context, id string) (volunteer.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.volunteers[id]
	if !ok {
		return volunteer.Volunteer{}, fmt.Errorf("volunteer %s: %w", id, storage.ErrNotFound)
	}
	return v, nil
}

func (s *Store) GetVolunteerByEmail(_ context.Context, email string) (volunteer.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.volunteers {
		if v.Email == email {
			return v, nil
		}
	}
	return volunteer.Volunteer{}, fmt.Errorf("volunteer %s: %w", email, storage.ErrNotFound)
}

func (s *Store) ListVolunteers(_ context.Context) ([]volunteer.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]volunteer.Volunteer, 0, len(s.volunteers))
	for _, v := range s.volunteers {
		result = append(result, v)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].PublicName < result[k].PublicName })
	return result, nil
}

func (s *Store) DeleteVolunteer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volunteers[id]; !ok {
		return fmt.Errorf("volunteer %s: %w", id, storage.ErrNotFound)
	}
	delete(s.volunteers, id)
	for jarID, j := range s.jars {
		if j.VolunteerID == id {
			delete(s.jars, jarID)
			delete(s.jarTags, jarID)
			delete(s.samples, jarID)
			delete(s.albums, jarID)
		}
	}
	return nil
}

// helpers ----------------------------------------------------------------------

func (s *Store) summarizeLocked(j jar.Jar) jar.Summary {
	j.Tags = s.tagNamesLocked(j.ID)
	sum := jar.Summary{Jar: cloneJar(j)}
	if v, ok := s.volunteers[j.VolunteerID]; ok {
		sum.VolunteerName = v.PublicName
	}
	if latest, ok := latestSample(s.samples[j.ID]); ok && latest.Amount != nil {
		current := *latest.Amount
		sum.CurrentSum = &current
		if j.Goal != nil && *j.Goal > 0 {
			pct := float64(current) * 100 / float64(*j.Goal)
			sum.FillPercentage = &pct
		}
	}
	return sum
}

func (s *Store) tagNamesLocked(jarID string) []string {
	names := make([]string, 0, len(s.jarTags[jarID]))
	for _, tagID := range s.jarTags[jarID] {
		if t, ok := s.tags[tagID]; ok {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) jarHasTagLocked(jarID, name string) bool {
	for _, tagID := range s.jarTags[jarID] {
		if t, ok := s.tags[tagID]; ok && t.Name == name {
			return true
		}
	}
	return false
}

func latestSample(samples []jar.BalanceSample) (jar.BalanceSample, bool) {
	if len(samples) == 0 {
		return jar.BalanceSample{}, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.ObservedAt.After(latest.ObservedAt) ||
			(s.ObservedAt.Equal(latest.ObservedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	return latest, true
}

// orderSummaries sorts a listing. Jars without a computable fill percentage
// sort after all others in both fill orderings.
func orderSummaries(list []jar.Summary, ordering jar.Ordering) {
	byDateDesc := func(i, k int) bool {
		if !list[i].DateAdded.Equal(list[k].DateAdded) {
			return list[i].DateAdded.After(list[k].DateAdded)
		}
		return list[i].ID < list[k].ID
	}

	switch ordering {
	case jar.OrderDateAsc:
		sort.SliceStable(list, func(i, k int) bool {
			if !list[i].DateAdded.Equal(list[k].DateAdded) {
				return list[i].DateAdded.Before(list[k].DateAdded)
			}
			return list[i].ID < list[k].ID
		})
	case jar.OrderFillAsc, jar.OrderFillDesc:
		sort.SliceStable(list, func(i, k int) bool {
			a, b := list[i].FillPercentage, list[k].FillPercentage
			switch {
			case a == nil && b == nil:
				return byDateDesc(i, k)
			case a == nil:
				return false
			case b == nil:
				return true
			case *a == *b:
				return byDateDesc(i, k)
			case ordering == jar.OrderFillAsc:
				return *a < *b
			default:
				return *a > *b
			}
		})
	default:
		sort.SliceStable(list, byDateDesc)
	}
}

func cloneJar(j jar.Jar) jar.Jar {
	c := j
	c.Tags = append([]string(nil), j.Tags...)
	if j.Goal != nil {
		goal := *j.Goal
		c.Goal = &goal
	}
	if j.DateClosed != nil {
		closed := *j.DateClosed
		c.DateClosed = &closed
	}
	return c
}
