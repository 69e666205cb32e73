package jars

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
)

// CreateTag adds a catalog entry. Names are lower-cased before storage.
func (s *Service) CreateTag(ctx context.Context, actorID, name string) (jar.Tag, error) {
	if err := s.requireActive(ctx, actorID); err != nil {
		return jar.Tag{}, err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 50 {
		return jar.Tag{}, invalid("name", "must be 2 to 50 characters")
	}
	t, err := s.tags.CreateTag(ctx, jar.Tag{Name: name})
	if err != nil {
		return jar.Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return t, nil
}

// ListTags returns the tag catalog ordered by name.
func (s *Service) ListTags(ctx context.Context) ([]jar.Tag, error) {
	return s.tags.ListTags(ctx)
}

// DeleteTag removes a catalog entry and its links to jars.
func (s *Service) DeleteTag(ctx context.Context, actorID, id string) error {
	if err := s.requireActive(ctx, actorID); err != nil {
		return err
	}
	return s.tags.DeleteTag(ctx, id)
}
