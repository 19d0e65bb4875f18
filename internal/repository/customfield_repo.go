package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CustomFieldRepo is the default custom-field registry: plugins register
// field names in custom_field_registrations and store values per post in
// post_custom_fields. The report only ever sees enabled fields.
type CustomFieldRepo struct {
	pool *pgxpool.Pool
}

func NewCustomFieldRepo(pool *pgxpool.Pool) *CustomFieldRepo {
	return &CustomFieldRepo{pool: pool}
}

// EnabledFieldNames lists the field names whose contributing plugin is
// currently enabled.
func (r *CustomFieldRepo) EnabledFieldNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name FROM custom_field_registrations
		WHERE enabled = true
		ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Fetch bulk-loads the named fields for a set of posts in one query.
func (r *CustomFieldRepo) Fetch(ctx context.Context, postIDs []int64, names []string) (map[int64]map[string]string, error) {
	fields := make(map[int64]map[string]string)
	if len(postIDs) == 0 || len(names) == 0 {
		return fields, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT post_id, name, value
		FROM post_custom_fields
		WHERE post_id = ANY($1) AND name = ANY($2)`, postIDs, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var postID int64
		var name, value string
		if err := rows.Scan(&postID, &name, &value); err != nil {
			return nil, err
		}
		if fields[postID] == nil {
			fields[postID] = make(map[string]string)
		}
		fields[postID][name] = value
	}
	return fields, rows.Err()
}
