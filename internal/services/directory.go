// Package services – Directory
//
// Directory owns nutritionist profiles and derives their availability status
// on every read: offline when the profile flag is off, busy when the
// nutritionist holds an active session, online otherwise. Status is never
// cached or stored.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/repo"
	"github.com/tbourn/nutrichat-backend/internal/search"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProfileWithStatus pairs a profile with its freshly derived status.
type ProfileWithStatus struct {
	domain.NutritionistProfile
	Status domain.AvailabilityStatus `json:"status"`
}

// ProfilePatch carries the fields of an UpdateProfile call. Nil fields are
// left untouched.
type ProfilePatch struct {
	Name                *string              `json:"name,omitempty"`
	Specialties         *[]string            `json:"specialties,omitempty"`
	Bio                 *string              `json:"bio,omitempty"`
	Available           *bool                `json:"available,omitempty"`
	NextAvailableSlot   *time.Time           `json:"next_available_slot,omitempty"`
	WorkingHours        *domain.WorkingHours `json:"working_hours,omitempty"`
	AverageResponseTime *int                 `json:"average_response_time,omitempty"`
}

// Directory serves nutritionist profiles.
type Directory struct {
	DB *gorm.DB
}

// NewDirectory constructs a Directory.
func NewDirectory(db *gorm.DB) *Directory { return &Directory{DB: db} }

// Onboard creates a profile. An empty ID is generated.
func (d *Directory) Onboard(ctx context.Context, p domain.NutritionistProfile) (*domain.NutritionistProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, ErrNameRequired
	}
	if p.AverageResponseTime < 0 {
		return nil, ErrInvalidResponseTime
	}
	wh, err := normalizeWorkingHours(p.WorkingHours)
	if err != nil {
		return nil, err
	}
	p.WorkingHours = wh
	p.Specialties = search.FoldTerms(p.Specialties)
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	if err := repo.CreateNutritionist(ctx, d.DB, &p); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrNutritionistExists
		}
		return nil, storage(err, ErrNutritionistNotFound)
	}
	return &p, nil
}

// ListAll returns every profile.
func (d *Directory) ListAll(ctx context.Context) ([]domain.NutritionistProfile, error) {
	out, err := repo.ListNutritionists(ctx, d.DB, false)
	return out, storage(err, ErrNutritionistNotFound)
}

// ListAvailable returns profiles whose available flag is set. Busy
// nutritionists are included.
func (d *Directory) ListAvailable(ctx context.Context) ([]domain.NutritionistProfile, error) {
	out, err := repo.ListNutritionists(ctx, d.DB, true)
	return out, storage(err, ErrNutritionistNotFound)
}

// ListWithStatus returns profiles with their derived status, using one query
// for the set of busy nutritionists.
func (d *Directory) ListWithStatus(ctx context.Context, onlyAvailable bool) ([]ProfileWithStatus, error) {
	profiles, err := repo.ListNutritionists(ctx, d.DB, onlyAvailable)
	if err != nil {
		return nil, storage(err, ErrNutritionistNotFound)
	}
	busy, err := repo.BusyNutritionistIDs(ctx, d.DB)
	if err != nil {
		return nil, storage(err, ErrNutritionistNotFound)
	}
	out := make([]ProfileWithStatus, 0, len(profiles))
	for _, p := range profiles {
		_, isBusy := busy[p.ID]
		out = append(out, ProfileWithStatus{NutritionistProfile: p, Status: domain.DeriveStatus(p.Available, isBusy)})
	}
	return out, nil
}

// Get returns a profile or ErrNutritionistNotFound.
func (d *Directory) Get(ctx context.Context, id string) (*domain.NutritionistProfile, error) {
	p, err := repo.GetNutritionist(ctx, d.DB, id)
	if err != nil {
		return nil, storage(err, ErrNutritionistNotFound)
	}
	return p, nil
}

// GetWithStatus returns a profile with its derived status.
func (d *Directory) GetWithStatus(ctx context.Context, id string) (*ProfileWithStatus, error) {
	p, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := d.statusOf(ctx, p)
	if err != nil {
		return nil, err
	}
	return &ProfileWithStatus{NutritionistProfile: *p, Status: st}, nil
}

// Status derives the availability of a nutritionist. An unknown id reads as
// offline rather than an error.
func (d *Directory) Status(ctx context.Context, id string) (domain.AvailabilityStatus, error) {
	p, err := repo.GetNutritionist(ctx, d.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.StatusOffline, nil
	}
	if err != nil {
		return domain.StatusOffline, storage(err, ErrNutritionistNotFound)
	}
	return d.statusOf(ctx, p)
}

func (d *Directory) statusOf(ctx context.Context, p *domain.NutritionistProfile) (domain.AvailabilityStatus, error) {
	if !p.Available {
		return domain.StatusOffline, nil
	}
	busy, err := repo.NutritionistHasActiveSession(ctx, d.DB, p.ID)
	if err != nil {
		return domain.StatusOffline, storage(err, ErrNutritionistNotFound)
	}
	return domain.DeriveStatus(true, busy), nil
}

// UpdateProfile merges the supplied fields into the profile and returns the
// stored result.
func (d *Directory) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*domain.NutritionistProfile, error) {
	p := &domain.NutritionistProfile{ID: id}
	cols := make([]string, 0, 7)

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		p.Name = name
		cols = append(cols, "name")
	}
	if patch.Specialties != nil {
		p.Specialties = search.FoldTerms(*patch.Specialties)
		cols = append(cols, "specialties")
	}
	if patch.Bio != nil {
		p.Bio = *patch.Bio
		cols = append(cols, "bio")
	}
	if patch.Available != nil {
		p.Available = *patch.Available
		cols = append(cols, "available")
	}
	if patch.NextAvailableSlot != nil {
		slot := patch.NextAvailableSlot.UTC()
		p.NextAvailableSlot = &slot
		cols = append(cols, "next_available_slot")
	}
	if patch.WorkingHours != nil {
		wh, err := normalizeWorkingHours(*patch.WorkingHours)
		if err != nil {
			return nil, err
		}
		p.WorkingHours = wh
		cols = append(cols, "working_hours")
	}
	if patch.AverageResponseTime != nil {
		if *patch.AverageResponseTime < 0 {
			return nil, ErrInvalidResponseTime
		}
		p.AverageResponseTime = *patch.AverageResponseTime
		cols = append(cols, "average_response_time")
	}

	if len(cols) > 0 {
		if err := repo.UpdateNutritionist(ctx, d.DB, p, cols); err != nil {
			return nil, storage(err, ErrNutritionistNotFound)
		}
	}
	return d.Get(ctx, id)
}

// Pick chooses a nutritionist for a request that names none. Candidates are
// the available profiles; online beats busy, then the best match of query
// against specialties and bio, then the lower average response time, then
// name.
func (d *Directory) Pick(ctx context.Context, query string) (*domain.NutritionistProfile, error) {
	ctx, span := otel.Tracer("services/Directory").Start(ctx, "Pick",
		trace.WithAttributes(attribute.Int("query.len", len(query))),
	)
	defer span.End()

	cands, err := d.ListWithStatus(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, ErrNoNutritionistAvailable
	}

	docs := make([]search.Doc, 0, len(cands))
	for _, c := range cands {
		docs = append(docs, search.Doc{ID: c.ID, Tags: c.Specialties, Text: c.Bio})
	}
	idx := search.NewIndex(docs)
	score := make(map[string]float64, len(cands))
	for _, c := range cands {
		score[c.ID] = idx.Score(query, c.ID)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Status != b.Status {
			return a.Status == domain.StatusOnline
		}
		if score[a.ID] != score[b.ID] {
			return score[a.ID] > score[b.ID]
		}
		if a.AverageResponseTime != b.AverageResponseTime {
			return a.AverageResponseTime < b.AverageResponseTime
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	picked := cands[0].NutritionistProfile
	span.SetAttributes(attribute.String("nutritionist.id", picked.ID))
	return &picked, nil
}

var weekdays = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
}

// normalizeWorkingHours lower-cases weekday keys and checks every window.
func normalizeWorkingHours(in domain.WorkingHours) (domain.WorkingHours, error) {
	if len(in) == 0 {
		return in, nil
	}
	out := make(domain.WorkingHours, len(in))
	for day, tr := range in {
		key := strings.ToLower(strings.TrimSpace(day))
		if _, ok := weekdays[key]; !ok {
			return nil, ErrInvalidWorkingHours
		}
		start, err1 := time.Parse("15:04", tr.Start)
		end, err2 := time.Parse("15:04", tr.End)
		if err1 != nil || err2 != nil || !start.Before(end) {
			return nil, ErrInvalidWorkingHours
		}
		out[key] = tr
	}
	return out, nil
}
