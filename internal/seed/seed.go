// Package seed loads nutritionist profiles from a YAML file and writes them
// into the directory at startup. Seeding is an upsert keyed by profile id, so
// rerunning it with an edited file updates the existing rows.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/repo"
	"github.com/tbourn/nutrichat-backend/internal/search"
)

// Profile is one entry of the seed file.
type Profile struct {
	ID                  string              `yaml:"id"`
	Name                string              `yaml:"name"`
	Specialties         []string            `yaml:"specialties"`
	Bio                 string              `yaml:"bio"`
	Available           bool                `yaml:"available"`
	NextAvailableSlot   *time.Time          `yaml:"next_available_slot"`
	WorkingHours        domain.WorkingHours `yaml:"working_hours"`
	AverageResponseTime int                 `yaml:"average_response_time"`
}

// File is the seed document.
type File struct {
	Nutritionists []Profile `yaml:"nutritionists"`
}

// Load reads and validates the seed file at path.
func Load(path string) ([]domain.NutritionistProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a seed document. Every entry needs an id and a name, and ids
// must be unique within the file.
func Parse(data []byte) ([]domain.NutritionistProfile, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Nutritionists))
	out := make([]domain.NutritionistProfile, 0, len(f.Nutritionists))
	for i, p := range f.Nutritionists {
		id := strings.TrimSpace(p.ID)
		name := strings.TrimSpace(p.Name)
		if id == "" || name == "" {
			return nil, fmt.Errorf("seed: entry %d needs id and name", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("seed: duplicate id %q", id)
		}
		if p.AverageResponseTime < 0 {
			return nil, fmt.Errorf("seed: %s: average_response_time must be >= 0", id)
		}
		seen[id] = struct{}{}

		wh := make(domain.WorkingHours, len(p.WorkingHours))
		for day, tr := range p.WorkingHours {
			wh[strings.ToLower(strings.TrimSpace(day))] = tr
		}
		var slot *time.Time
		if p.NextAvailableSlot != nil {
			s := p.NextAvailableSlot.UTC()
			slot = &s
		}
		out = append(out, domain.NutritionistProfile{
			ID:                  id,
			Name:                name,
			Specialties:         search.FoldTerms(p.Specialties),
			Bio:                 strings.TrimSpace(p.Bio),
			Available:           p.Available,
			NextAvailableSlot:   slot,
			WorkingHours:        wh,
			AverageResponseTime: p.AverageResponseTime,
		})
	}
	return out, nil
}

// Apply upserts every profile.
func Apply(ctx context.Context, db *gorm.DB, profiles []domain.NutritionistProfile) error {
	for i := range profiles {
		if err := repo.UpsertNutritionist(ctx, db, &profiles[i]); err != nil {
			return fmt.Errorf("seed %s: %w", profiles[i].ID, err)
		}
	}
	log.Info().Int("profiles", len(profiles)).Msg("directory seeded")
	return nil
}

// LoadAndApply is Load followed by Apply. An empty path is a no-op.
func LoadAndApply(ctx context.Context, db *gorm.DB, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	profiles, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(ctx, db, profiles)
}
