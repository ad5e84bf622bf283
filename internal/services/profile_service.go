package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/smartpost/internal/docstore"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/validator"
)

// ProfileCollection stores one free-form document per username.
const ProfileCollection = "profiles"

// ProfileService manages user profile documents.
type ProfileService struct {
	store docstore.Store
}

// NewProfileService constructs a ProfileService.
func NewProfileService(store docstore.Store) (*ProfileService, error) {
	if store == nil {
		return nil, errors.New("profile service: store is required")
	}
	return &ProfileService{store: store}, nil
}

// Create stores data as the profile of data["username"], replacing any existing profile.
func (s *ProfileService) Create(ctx context.Context, data map[string]any) (string, error) {
	username, _ := data["username"].(string)
	username, err := checkUsername(username)
	if err != nil {
		return "", err
	}

	doc := make(map[string]any, len(data))
	for key, value := range data {
		doc[key] = value
	}
	doc["username"] = username

	if err := s.store.Set(ctx, ProfileCollection, username, doc); err != nil {
		return "", fmt.Errorf("profile service: create %s: %w", username, err)
	}
	return username, nil
}

// Get returns the stored profile.
func (s *ProfileService) Get(ctx context.Context, username string) (map[string]any, error) {
	username, err := checkUsername(username)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, ProfileCollection, username)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("profile service: get %s: %w", username, err)
	}

	profile := snap.Data
	profile["username"] = snap.ID
	return profile, nil
}

// Update applies a partial update to an existing profile.
func (s *ProfileService) Update(ctx context.Context, username string, fields map[string]any) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, username); err != nil {
		return err
	}
	if len(fields) == 0 {
		return apperrors.NewBadRequest("No fields to update")
	}

	err = s.store.Update(ctx, ProfileCollection, username, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperrors.ErrNotFound.WithMessage("Profile not found")
	}
	if err != nil {
		return fmt.Errorf("profile service: update %s: %w", username, err)
	}
	return nil
}

// Delete removes an existing profile.
func (s *ProfileService) Delete(ctx context.Context, username string) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, username); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ProfileCollection, username); err != nil {
		return fmt.Errorf("profile service: delete %s: %w", username, err)
	}
	return nil
}

func checkUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperrors.NewBadRequest("username is required")
	}
	if !validator.IsIdentifier(username) {
		return "", apperrors.NewBadRequest("username may only contain letters, digits, '.', '_' and '-'")
	}
	return username, nil
}
