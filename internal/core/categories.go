package core

import "strings"

// UncategorizedName is shown for category ids that no longer resolve.
const UncategorizedName = "Uncategorized"

type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Custom bool   `json:"custom"`
}

// CategoryIcons enumerates the icon keys a category may reference.
var CategoryIcons = map[string]string{
	"utensils":       "icons/utensils.svg",
	"car":            "icons/car.svg",
	"shopping-bag":   "icons/shopping-bag.svg",
	"film":           "icons/film.svg",
	"coffee":         "icons/coffee.svg",
	"home":           "icons/home.svg",
	"bolt":           "icons/bolt.svg",
	"heart-pulse":    "icons/heart-pulse.svg",
	"plane":          "icons/plane.svg",
	"dumbbell":       "icons/dumbbell.svg",
	"graduation-cap": "icons/graduation-cap.svg",
	"tag":            "icons/tag.svg",
	"gift":           "icons/gift.svg",
	"paw":            "icons/paw.svg",
}

// DefaultCategories are available to every user.
var DefaultCategories = []Category{
	{ID: "1", Name: "Food & Dining", Icon: "utensils"},
	{ID: "2", Name: "Transportation", Icon: "car"},
	{ID: "3", Name: "Shopping", Icon: "shopping-bag"},
	{ID: "4", Name: "Entertainment", Icon: "film"},
	{ID: "5", Name: "Coffee & Snacks", Icon: "coffee"},
	{ID: "6", Name: "Housing", Icon: "home"},
	{ID: "7", Name: "Utilities", Icon: "bolt"},
	{ID: "8", Name: "Health", Icon: "heart-pulse"},
	{ID: "9", Name: "Travel", Icon: "plane"},
	{ID: "10", Name: "Fitness", Icon: "dumbbell"},
	{ID: "11", Name: "Education", Icon: "graduation-cap"},
	{ID: "12", Name: "Other", Icon: "tag"},
}

// IconAsset returns the asset for an icon key.
func IconAsset(key string) (string, bool) {
	asset, ok := CategoryIcons[key]
	return asset, ok
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > maxNameLength {
		return ErrNameTooLong
	}
	if _, ok := CategoryIcons[c.Icon]; !ok {
		return ErrInvalidIcon
	}
	return nil
}

// CategorySet resolves category ids to display names.
type CategorySet map[string]Category

// NewCategorySet merges the defaults with a user's custom categories.
func NewCategorySet(custom []Category) CategorySet {
	set := make(CategorySet, len(DefaultCategories)+len(custom))
	for _, c := range DefaultCategories {
		set[c.ID] = c
	}
	for _, c := range custom {
		c.Custom = true
		set[c.ID] = c
	}
	return set
}

// Name returns the display name for id, or UncategorizedName.
func (s CategorySet) Name(id string) string {
	if c, ok := s[id]; ok {
		return c.Name
	}
	return UncategorizedName
}
