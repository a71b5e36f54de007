package store

import (
	"context"
	"fmt"
	"time"
)

func validProfileType(profileType string) bool {
	return profileType == "agent" || profileType == "user"
}

// SetProfile upserts one profile field and stamps its updated_at to now.
func (s *Store) SetProfile(ctx context.Context, profileType, key, value string) error {
	if !validProfileType(profileType) {
		return ErrInvalidProfileType
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_fields (profile_type, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile_type, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, profileType, key, value, time.Now().Unix())
	return err
}

// GetProfile returns every field for profileType, keyed by field name.
func (s *Store) GetProfile(ctx context.Context, profileType string) (map[string]string, error) {
	fields, err := s.GetProfileFields(ctx, profileType)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out, nil
}

// GetProfileFields returns every field for profileType with its
// updated_at timestamp, for callers (get_info) that surface field
// freshness rather than just the bare value.
func (s *Store) GetProfileFields(ctx context.Context, profileType string) ([]ProfileField, error) {
	if !validProfileType(profileType) {
		return nil, ErrInvalidProfileType
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, updated_at FROM profile_fields WHERE profile_type = ? ORDER BY key ASC
	`, profileType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProfileField
	for rows.Next() {
		var f ProfileField
		var updatedAt int64
		if err := rows.Scan(&f.Key, &f.Value, &updatedAt); err != nil {
			return nil, err
		}
		f.ProfileType = profileType
		f.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetBootstrapState returns true once either explicitly set or the
// derived condition (agent name+nature, user name all non-empty) is
// met. An explicitly-recorded true never regresses, even if the
// underlying profile fields are later blanked.
func (s *Store) GetBootstrapState(ctx context.Context) (bool, error) {
	explicit, err := s.GetAppState(ctx, bootstrapCompleteKey, "")
	if err != nil {
		return false, err
	}
	if explicit == "true" {
		return true, nil
	}

	agent, err := s.GetProfile(ctx, "agent")
	if err != nil {
		return false, err
	}
	user, err := s.GetProfile(ctx, "user")
	if err != nil {
		return false, err
	}

	derived := agent["name"] != "" && agent["nature"] != "" && user["name"] != ""
	if derived {
		if err := s.SetBootstrapComplete(ctx, true); err != nil {
			return false, fmt.Errorf("persist derived bootstrap state: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// SetBootstrapComplete explicitly records the bootstrap flag.
func (s *Store) SetBootstrapComplete(ctx context.Context, complete bool) error {
	value := "false"
	if complete {
		value = "true"
	}
	return s.SetAppState(ctx, bootstrapCompleteKey, value)
}
