package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository"
	apperrors "github.com/labnode/lims-api/pkg/errors"
)

// Reference ranges and delta rules are hot, near-static reads: every numeric
// submission fetches them. They sit behind a short-lived in-process cache.
const referenceCacheTTL = 5 * time.Minute

type referenceRepository struct {
	BaseRepository
	cache *gocache.Cache
}

func NewReferenceRepository(base BaseRepository) repository.ReferenceRepository {
	return &referenceRepository{
		BaseRepository: base,
		cache:          gocache.New(referenceCacheTTL, 10*time.Minute),
	}
}

func cacheKey(kind string, testID uuid.UUID, parameterID *uuid.UUID) string {
	if parameterID != nil {
		return fmt.Sprintf("%s:%s:%s", kind, testID, *parameterID)
	}
	return fmt.Sprintf("%s:%s:-", kind, testID)
}

// ListRanges returns candidates in specificity order: gender+age band first,
// then gender-only, then age-only, then unscoped; creation order breaks ties.
// The resolver takes the first matching candidate, so this ordering is part
// of the contract.
func (r *referenceRepository) ListRanges(ctx context.Context, testID uuid.UUID, parameterID *uuid.UUID) ([]*model.ReferenceRange, error) {
	key := cacheKey("ranges", testID, parameterID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]*model.ReferenceRange), nil
	}

	query := `
		SELECT id, test_id, parameter_id, gender, age_min_years, age_max_years,
			normal_low, normal_high, critical_low, critical_high, text_range,
			created_at, updated_at
		FROM reference_ranges
		WHERE test_id = $1 AND parameter_id IS NOT DISTINCT FROM $2
		ORDER BY
			(gender IS NOT NULL)::int + (age_min_years IS NOT NULL OR age_max_years IS NOT NULL)::int DESC,
			created_at ASC
	`
	var ranges []*model.ReferenceRange
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &ranges, query, testID, parameterID); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list reference ranges: %w", err))
	}

	r.cache.Set(key, ranges, gocache.DefaultExpiration)
	return ranges, nil
}

func (r *referenceRepository) GetDeltaRule(ctx context.Context, testID uuid.UUID, parameterID *uuid.UUID) (*model.DeltaCheckRule, error) {
	key := cacheKey("delta", testID, parameterID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*model.DeltaCheckRule), nil
	}

	query := `
		SELECT id, test_id, parameter_id, absolute_limit, percent_limit, created_at, updated_at
		FROM delta_check_rules
		WHERE test_id = $1 AND parameter_id IS NOT DISTINCT FROM $2
	`
	var rule model.DeltaCheckRule
	if err := sqlx.GetContext(ctx, r.ext(ctx), &rule, query, testID, parameterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Absence of a rule is a valid configuration; cache it too.
			r.cache.Set(key, (*model.DeltaCheckRule)(nil), gocache.DefaultExpiration)
			return nil, nil
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get delta check rule: %w", err))
	}

	r.cache.Set(key, &rule, gocache.DefaultExpiration)
	return &rule, nil
}
