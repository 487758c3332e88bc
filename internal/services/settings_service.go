package services

import (
	"context"
	"fmt"
	"strings"

	"pennylogs/internal/core"
	"pennylogs/internal/currency"
	"pennylogs/internal/ports"
)

// SettingsService manages a user's categories and preferences.
type SettingsService struct {
	categories ports.CategoryStore
	prefs      ports.PreferenceStore
}

func NewSettingsService(categories ports.CategoryStore, prefs ports.PreferenceStore) *SettingsService {
	return &SettingsService{categories: categories, prefs: prefs}
}

// Categories returns the defaults followed by the user's custom categories.
func (s *SettingsService) Categories(ctx context.Context, uid string) ([]core.Category, error) {
	custom, err := s.categories.ListCategories(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(core.DefaultCategories)+len(custom))
	out = append(out, core.DefaultCategories...)
	return append(out, custom...), nil
}

func (s *SettingsService) CreateCategory(ctx context.Context, uid string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Icon = strings.TrimSpace(c.Icon)
	return s.categories.CreateCategory(ctx, uid, c)
}

// DeleteCategory removes a custom category. Expenses that referenced it
// resolve to "Uncategorized" from then on.
func (s *SettingsService) DeleteCategory(ctx context.Context, uid, id string) error {
	return s.categories.DeleteCategory(ctx, uid, id)
}

func (s *SettingsService) Preferences(ctx context.Context, uid string) (core.Preferences, error) {
	return s.prefs.GetPreferences(ctx, uid)
}

func (s *SettingsService) SetPreferences(ctx context.Context, uid string, p core.Preferences) (core.Preferences, error) {
	code, err := currency.NormalizeCode(p.DisplayCurrency)
	if err != nil {
		return core.Preferences{}, err
	}
	p.DisplayCurrency = code
	if err := s.prefs.PutPreferences(ctx, uid, p); err != nil {
		return core.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}
