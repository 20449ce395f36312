// Package demo holds the sample graph served by cmd/server when SEED_DEMO
// is set and used by examples/ and the e2e tests.
package demo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// Seed inserts the demo graph of models.hcl:
//
//	persons 1 Jennifer (pet 1), 2 Bradley (parent 1), 3 Margot (parent 2, pet 2), 4 Ryan
//	animals 1 Fluffy (owner 1), 2 Rex (owner 3), 3 Tom (owner 1), 4 Stray
//	movies  1 Silver Linings, 2 Barbie, 3 Lost Reel (deleted)
//	links   1-1, 2-1, 3-2, 4-2, 1-3
func Seed(ctx context.Context, ex repositories.Executor) error {
	seed := []struct {
		table string
		rows  []entities.Row
	}{
		{"persons", []entities.Row{
			{"id": int64(1), "first_name": "Jennifer", "last_name": "Lawrence", "parent_id": nil, "pet_id": nil},
			{"id": int64(2), "first_name": "Bradley", "last_name": "Cooper", "parent_id": int64(1), "pet_id": nil},
			{"id": int64(3), "first_name": "Margot", "last_name": "Robbie", "parent_id": int64(2), "pet_id": nil},
			{"id": int64(4), "first_name": "Ryan", "last_name": "Gosling", "parent_id": nil, "pet_id": nil},
		}},
		{"animals", []entities.Row{
			{"id": int64(1), "name": "Fluffy", "owner_id": int64(1)},
			{"id": int64(2), "name": "Rex", "owner_id": int64(3)},
			{"id": int64(3), "name": "Tom", "owner_id": int64(1)},
			{"id": int64(4), "name": "Stray", "owner_id": nil},
		}},
		{"movies", []entities.Row{
			{"id": int64(1), "name": "Silver Linings", "deleted": false},
			{"id": int64(2), "name": "Barbie", "deleted": false},
			{"id": int64(3), "name": "Lost Reel", "deleted": true},
		}},
		{"persons_movies", []entities.Row{
			{"person_id": int64(1), "movie_id": int64(1)},
			{"person_id": int64(2), "movie_id": int64(1)},
			{"person_id": int64(3), "movie_id": int64(2)},
			{"person_id": int64(4), "movie_id": int64(2)},
			{"person_id": int64(1), "movie_id": int64(3)},
		}},
	}

	for _, s := range seed {
		if _, err := ex.Query(s.table).Insert(ctx, s.rows...); err != nil {
			return fmt.Errorf("failed to seed %s: %w", s.table, err)
		}
	}

	// persons and animals reference each other, so pets are set last
	for person, pet := range map[int64]int64{1: 1, 3: 2} {
		_, err := ex.Query("persons").Where(sq.Eq{"id": person}).Update(ctx, entities.Row{"pet_id": pet})
		if err != nil {
			return fmt.Errorf("failed to seed persons: %w", err)
		}
	}
	return nil
}
