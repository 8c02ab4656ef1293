package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TargetMatch is one candidate hit during relation target resolution
// (§4.7.1). Exactly one of ObjectID/FloatID is set.
type TargetMatch struct {
	ObjectID *int64
	FloatID  *int64
	TypeRef  string
}

// FindObjectByPID resolves a PID to an object, same-specification first
// when specID is non-nil, falling back to a global search when specID is
// nil or the scoped search misses (§4.7.1 case `@`). Matches are ordered
// by id ascending; len(matches) > 1 signals ambiguity at that scope.
func FindObjectByPID(ctx context.Context, q Querier, specID *int64, pid string) ([]TargetMatch, error) {
	query := `SELECT id, type_ref FROM spec_objects WHERE pid = ?`
	args := []any{pid}
	if specID != nil {
		query += ` AND specification_ref = ?`
		args = append(args, *specID)
	}
	query += ` ORDER BY id ASC`

	var out []TargetMatch
	err := queryMatches(ctx, q, query, args, func(id int64, typeRef string) TargetMatch {
		return TargetMatch{ObjectID: &id, TypeRef: typeRef}
	}, &out)
	return out, err
}

// FindByLabelGlobal searches objects and floats by label, optionally
// constrained to one specification and/or one type_ref, and returns every
// hit ordered object-then-float, each group by id ascending (§4.7.1 case
// `#`, plain `label` and `type:label` forms).
func FindByLabelGlobal(ctx context.Context, q Querier, specID *int64, typeRef, label string) ([]TargetMatch, error) {
	var out []TargetMatch

	objQuery := `SELECT id, type_ref FROM spec_objects WHERE label = ?`
	objArgs := []any{label}
	if specID != nil {
		objQuery += ` AND specification_ref = ?`
		objArgs = append(objArgs, *specID)
	}
	if typeRef != "" {
		objQuery += ` AND type_ref = ?`
		objArgs = append(objArgs, typeRef)
	}
	objQuery += ` ORDER BY id ASC`
	if err := queryMatches(ctx, q, objQuery, objArgs, func(id int64, tr string) TargetMatch {
		return TargetMatch{ObjectID: &id, TypeRef: tr}
	}, &out); err != nil {
		return nil, err
	}

	floatQuery := `SELECT id, type_ref FROM spec_floats WHERE label = ?`
	floatArgs := []any{label}
	if specID != nil {
		floatQuery += ` AND specification_ref = ?`
		floatArgs = append(floatArgs, *specID)
	}
	if typeRef != "" {
		floatQuery += ` AND type_ref = ?`
		floatArgs = append(floatArgs, typeRef)
	}
	floatQuery += ` ORDER BY id ASC`
	if err := queryMatches(ctx, q, floatQuery, floatArgs, func(id int64, tr string) TargetMatch {
		return TargetMatch{FloatID: &id, TypeRef: tr}
	}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// FindFloatByLabelInScope searches the floats owned by scopeObjectID,
// optionally constrained by typeRef (§4.7.1 "then search that object's
// floats by label").
func FindFloatByLabelInScope(ctx context.Context, q Querier, scopeObjectID int64, typeRef, label string) ([]TargetMatch, error) {
	query := `SELECT id, type_ref FROM spec_floats WHERE parent_object_id = ? AND label = ?`
	args := []any{scopeObjectID, label}
	if typeRef != "" {
		query += ` AND type_ref = ?`
		args = append(args, typeRef)
	}
	query += ` ORDER BY id ASC`

	var out []TargetMatch
	err := queryMatches(ctx, q, query, args, func(id int64, tr string) TargetMatch {
		return TargetMatch{FloatID: &id, TypeRef: tr}
	}, &out)
	return out, err
}

// SourceObjectTypeRef returns the type_ref of a relation's source object,
// used when scoring a relation type's d_source_type dimension (§4.7.2).
func SourceObjectTypeRef(ctx context.Context, q Querier, objectID int64) (string, error) {
	var typeRef string
	row := q.QueryRowContext(ctx, `SELECT type_ref FROM spec_objects WHERE id = ?`, objectID)
	if err := row.Scan(&typeRef); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to load source object type: %w", err)
	}
	return typeRef, nil
}

func queryMatches(ctx context.Context, q Querier, query string, args []any, build func(id int64, typeRef string) TargetMatch, out *[]TargetMatch) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("target lookup failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var typeRef string
		if err := rows.Scan(&id, &typeRef); err != nil {
			return err
		}
		*out = append(*out, build(id, typeRef))
	}
	return rows.Err()
}
