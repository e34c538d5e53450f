// Package bookmarks keeps the cafes users saved for later.
package bookmarks

import (
	"context"
	"strings"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	bookmarkssupabase "github.com/brewmap/brewmap/services/bookmarks/supabase"
)

// Config configures the bookmark service.
type Config struct {
	Repo   bookmarkssupabase.RepositoryInterface
	Logger *logging.Logger
}

// Service implements bookmark operations.
type Service struct {
	repo bookmarkssupabase.RepositoryInterface
	log  *logging.Logger
}

// New creates a bookmark service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("bookmarks")
	}
	return &Service{repo: cfg.Repo, log: log}
}

func validate(userID, cafeID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(cafeID) == "" {
		return errors.Validation("user and cafe are required")
	}
	return nil
}

// AddBookmark bookmarks cafeID for userID.
func (s *Service) AddBookmark(ctx context.Context, userID, cafeID string) error {
	if err := validate(userID, cafeID); err != nil {
		return err
	}
	return s.repo.Add(ctx, userID, cafeID)
}

// RemoveBookmark removes the bookmark. Removing a missing bookmark is not
// an error.
func (s *Service) RemoveBookmark(ctx context.Context, userID, cafeID string) error {
	if err := validate(userID, cafeID); err != nil {
		return err
	}
	_, err := s.repo.Remove(ctx, userID, cafeID)
	return err
}

// IsBookmarked reports whether userID bookmarked cafeID.
func (s *Service) IsBookmarked(ctx context.Context, userID, cafeID string) (bool, error) {
	if err := validate(userID, cafeID); err != nil {
		return false, err
	}
	return s.repo.Exists(ctx, userID, cafeID)
}

// ToggleBookmark flips the bookmark and returns the new state.
func (s *Service) ToggleBookmark(ctx context.Context, userID, cafeID string) (bool, error) {
	if err := validate(userID, cafeID); err != nil {
		return false, err
	}
	removed, err := s.repo.Remove(ctx, userID, cafeID)
	if err != nil {
		return false, err
	}
	if removed {
		return false, nil
	}
	if err := s.repo.Add(ctx, userID, cafeID); err != nil {
		return false, err
	}
	return true, nil
}

// GetUserBookmarks lists the user's bookmarks with their cafes.
func (s *Service) GetUserBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Bookmark{}
	}
	return rows, nil
}
