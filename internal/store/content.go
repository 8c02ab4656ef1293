package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/models"
)

// FindSpecificationByIdentifier looks up a specification row by its
// stable text identifier (file stem), used by the driver to recover a
// cached document's existing spec_id without re-running INITIALIZE
// (§4.5, §4.13).
func (s *Store) FindSpecificationByIdentifier(ctx context.Context, identifier string) (*models.Specification, error) {
	var spec models.Specification
	var pid, headerAST, bodyAST sql.NullString
	err := s.QueryOne(ctx, func(row *sql.Row) error {
		return row.Scan(&spec.ID, &spec.Identifier, &spec.RootPath, &spec.LongName, &spec.TypeRef, &pid, &headerAST, &bodyAST)
	}, `SELECT id, identifier, root_path, long_name, type_ref, pid, header_ast, body_ast FROM specifications WHERE identifier = ?`, identifier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find specification %s: %w", identifier, err)
	}
	spec.PID = pid.String
	spec.HeaderAST = headerAST.String
	spec.BodyAST = bodyAST.String
	return &spec, nil
}

// GetSpecification looks up a specification row by id, used by the Link
// Rewriter to resolve a target relation's owning specification identifier
// for cross-document anchor rewriting (§4.11).
func GetSpecification(ctx context.Context, q Querier, id int64) (*models.Specification, error) {
	var spec models.Specification
	var pid, headerAST, bodyAST sql.NullString
	row := q.QueryRowContext(ctx, `SELECT id, identifier, root_path, long_name, type_ref, pid, header_ast, body_ast FROM specifications WHERE id = ?`, id)
	if err := row.Scan(&spec.ID, &spec.Identifier, &spec.RootPath, &spec.LongName, &spec.TypeRef, &pid, &headerAST, &bodyAST); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get specification %d: %w", id, err)
	}
	spec.PID = pid.String
	spec.HeaderAST = headerAST.String
	spec.BodyAST = bodyAST.String
	return &spec, nil
}

// DeleteSpecificationContent cascades the delete of every content row
// owned by specID, preserving the build graph and output cache (§3
// "Lifecycle"). Relations are deleted regardless of direction since they
// belong to the specification that authored the link, not its target.
func DeleteSpecificationContent(ctx context.Context, q Querier, specID int64) error {
	stmts := []string{
		`DELETE FROM spec_relations WHERE specification_ref = ?`,
		`DELETE FROM attribute_values WHERE owner_object_id IN (SELECT id FROM spec_objects WHERE specification_ref = ?) OR owner_float_id IN (SELECT id FROM spec_floats WHERE specification_ref = ?)`,
		`DELETE FROM spec_views WHERE specification_ref = ?`,
		`DELETE FROM spec_floats WHERE specification_ref = ?`,
		`DELETE FROM spec_objects WHERE specification_ref = ?`,
		`DELETE FROM specifications WHERE id = ?`,
	}
	for _, stmt := range stmts {
		args := []any{specID}
		if countPlaceholders(stmt) == 2 {
			args = append(args, specID)
		}
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to clear specification content: %w", err)
		}
	}
	return nil
}

func countPlaceholders(stmt string) int {
	n := 0
	for _, c := range stmt {
		if c == '?' {
			n++
		}
	}
	return n
}

// InsertSpecification inserts a new specification row, returning its id.
func InsertSpecification(ctx context.Context, q Querier, spec *models.Specification) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO specifications (identifier, root_path, long_name, type_ref, pid, header_ast, body_ast)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spec.Identifier, spec.RootPath, spec.LongName, spec.TypeRef,
		nullIfEmpty(spec.PID), nullIfEmpty(spec.HeaderAST), nullIfEmpty(spec.BodyAST))
	if err != nil {
		return 0, fmt.Errorf("failed to insert specification %s: %w", spec.Identifier, err)
	}
	return res.LastInsertId()
}

// UpdateSpecificationAST persists the header/body AST computed during
// TRANSFORM/EMIT (§3 "header_ast populated in TRANSFORM").
func UpdateSpecificationAST(ctx context.Context, q Querier, specID int64, headerAST, bodyAST string) error {
	_, err := q.ExecContext(ctx, `UPDATE specifications SET header_ast = ?, body_ast = ? WHERE id = ?`,
		nullIfEmpty(headerAST), nullIfEmpty(bodyAST), specID)
	return err
}

// InsertSpecObject inserts a new object row, returning its id.
func InsertSpecObject(ctx context.Context, q Querier, o *models.SpecObject) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO spec_objects (content_sha, specification_ref, type_ref, from_file, file_seq, pid, pid_prefix, pid_sequence, pid_auto_generated, title_text, label, level, start_line, end_line, ast, body_ast)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ContentSHA, o.SpecificationRef, o.TypeRef, o.FromFile, o.FileSeq,
		nullIfEmpty(o.PID), nullIfEmpty(o.PIDPrefix), nullIfZero(o.PIDSequence), o.PIDAutoGenerated,
		o.TitleText, o.Label, o.Level, o.StartLine, o.EndLine, nullIfEmpty(o.AST), nullIfEmpty(o.BodyAST))
	if err != nil {
		return 0, fmt.Errorf("failed to insert object %s: %w", o.Label, err)
	}
	return res.LastInsertId()
}

// UpdateSpecObjectAST rewrites an object's stored AST (used by the Link
// Rewriter, §4.11).
func UpdateSpecObjectAST(ctx context.Context, q Querier, id int64, ast string) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_objects SET ast = ? WHERE id = ?`, ast, id)
	return err
}

// UpdateSpecObjectBodyAST rewrites an object's stored narrative body
// block AST, set by the Initializer from the ordinary blocks following
// its heading and rewritten in place by the Link Rewriter (§4.11).
func UpdateSpecObjectBodyAST(ctx context.Context, q Querier, id int64, ast string) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_objects SET body_ast = ? WHERE id = ?`, ast, id)
	return err
}

// UpdateAttributeValueAST rewrites an attribute's stored rich-body AST
// (used by the Link Rewriter, §4.11).
func UpdateAttributeValueAST(ctx context.Context, q Querier, id int64, ast string) error {
	_, err := q.ExecContext(ctx, `UPDATE attribute_values SET ast = ? WHERE id = ?`, ast, id)
	return err
}

// GetSpecObject looks up a single object by id, regardless of which
// specification owns it (used by the Link Rewriter to describe a
// resolved relation's target object, §4.11).
func GetSpecObject(ctx context.Context, q Querier, id int64) (*models.SpecObject, error) {
	var o models.SpecObject
	var pid, pidPrefix, ast, bodyAST sql.NullString
	var pidSeq sql.NullInt64
	row := q.QueryRowContext(ctx, `SELECT id, content_sha, specification_ref, type_ref, from_file, file_seq, pid, pid_prefix, pid_sequence, pid_auto_generated, title_text, label, level, start_line, end_line, ast, body_ast
		FROM spec_objects WHERE id = ?`, id)
	if err := row.Scan(&o.ID, &o.ContentSHA, &o.SpecificationRef, &o.TypeRef, &o.FromFile, &o.FileSeq,
		&pid, &pidPrefix, &pidSeq, &o.PIDAutoGenerated, &o.TitleText, &o.Label, &o.Level,
		&o.StartLine, &o.EndLine, &ast, &bodyAST); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %d: %w", id, err)
	}
	o.PID, o.PIDPrefix, o.PIDSequence, o.AST, o.BodyAST = pid.String, pidPrefix.String, pidSeq.Int64, ast.String, bodyAST.String
	return &o, nil
}

// GetSpecFloat looks up a single float by id, regardless of which
// specification owns it (used by the Link Rewriter, §4.11).
func GetSpecFloat(ctx context.Context, q Querier, id int64) (*models.SpecFloat, error) {
	row := q.QueryRowContext(ctx, `SELECT id, content_sha, specification_ref, type_ref, from_file, file_seq, start_line, label, anchor, number, caption, raw_content, raw_ast, resolved_ast, parent_object_id, pandoc_attributes, syntax_key
		FROM spec_floats WHERE id = ?`, id)
	f, err := scanSpecFloatRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get float %d: %w", id, err)
	}
	return &f, nil
}

// ListSpecObjects returns every object of specID ordered by file_seq
// (§8 invariant 1).
func ListSpecObjects(ctx context.Context, s *Store, specID int64) ([]models.SpecObject, error) {
	var out []models.SpecObject
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var o models.SpecObject
		var pid, pidPrefix, ast, bodyAST sql.NullString
		var pidSeq sql.NullInt64
		if err := rows.Scan(&o.ID, &o.ContentSHA, &o.SpecificationRef, &o.TypeRef, &o.FromFile, &o.FileSeq,
			&pid, &pidPrefix, &pidSeq, &o.PIDAutoGenerated, &o.TitleText, &o.Label, &o.Level,
			&o.StartLine, &o.EndLine, &ast, &bodyAST); err != nil {
			return err
		}
		o.PID, o.PIDPrefix, o.PIDSequence, o.AST, o.BodyAST = pid.String, pidPrefix.String, pidSeq.Int64, ast.String, bodyAST.String
		out = append(out, o)
		return nil
	}, `SELECT id, content_sha, specification_ref, type_ref, from_file, file_seq, pid, pid_prefix, pid_sequence, pid_auto_generated, title_text, label, level, start_line, end_line, ast, body_ast
		FROM spec_objects WHERE specification_ref = ? ORDER BY file_seq ASC`, specID)
	return out, err
}

// NextPIDSequence returns the next `(specification, type)` auto-PID
// sequence number (§4.5 "Auto-PID synthesis").
func NextPIDSequence(ctx context.Context, s *Store, specID int64, typeRef string) (int64, error) {
	var max sql.NullInt64
	err := s.QueryOne(ctx, func(row *sql.Row) error { return row.Scan(&max) },
		`SELECT MAX(pid_sequence) FROM spec_objects WHERE specification_ref = ? AND type_ref = ? AND pid_auto_generated = 1`,
		specID, typeRef)
	if err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// InsertAttributeValue inserts one EAV row.
func InsertAttributeValue(ctx context.Context, q Querier, a *models.AttributeValue) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO attribute_values (owner_object_id, owner_float_id, name, raw_value, datatype, string_value, int_value, real_value, bool_value, date_value, enum_ref, ast, xhtml_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfZero(a.OwnerObjectID), nullIfZero(a.OwnerFloatID), a.Name, a.RawValue, string(a.Datatype),
		a.StringValue, a.IntValue, a.RealValue, boolPtrToInt(a.BoolValue), a.DateValue, a.EnumRef,
		nullIfEmpty(a.AST), nullIfEmpty(a.XHTMLValue))
	if err != nil {
		return 0, fmt.Errorf("failed to insert attribute %s: %w", a.Name, err)
	}
	return res.LastInsertId()
}

// ListAttributeValues returns every attribute row owned by objectID
// (ownerFloatID=0 selects by object, and vice versa — callers pass one
// nonzero id and a zero for the other).
func ListAttributeValues(ctx context.Context, s *Store, ownerObjectID, ownerFloatID int64) ([]models.AttributeValue, error) {
	var out []models.AttributeValue
	query := `SELECT id, owner_object_id, owner_float_id, name, raw_value, datatype, string_value, int_value, real_value, bool_value, date_value, enum_ref, ast, xhtml_value FROM attribute_values WHERE `
	var arg int64
	if ownerObjectID != 0 {
		query += `owner_object_id = ?`
		arg = ownerObjectID
	} else {
		query += `owner_float_id = ?`
		arg = ownerFloatID
	}
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var a models.AttributeValue
		var ownerObj, ownerFloat sql.NullInt64
		var boolVal sql.NullInt64
		var ast, xhtml sql.NullString
		if err := rows.Scan(&a.ID, &ownerObj, &ownerFloat, &a.Name, &a.RawValue, &a.Datatype,
			&a.StringValue, &a.IntValue, &a.RealValue, &boolVal, &a.DateValue, &a.EnumRef, &ast, &xhtml); err != nil {
			return err
		}
		a.OwnerObjectID, a.OwnerFloatID = ownerObj.Int64, ownerFloat.Int64
		a.AST, a.XHTMLValue = ast.String, xhtml.String
		if boolVal.Valid {
			b := boolVal.Int64 != 0
			a.BoolValue = &b
		}
		out = append(out, a)
		return nil
	}, query, arg)
	return out, err
}

// InsertSpecFloat inserts a new float row, returning its id.
func InsertSpecFloat(ctx context.Context, q Querier, f *models.SpecFloat) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO spec_floats (content_sha, specification_ref, type_ref, from_file, file_seq, start_line, label, anchor, number, caption, raw_content, raw_ast, resolved_ast, parent_object_id, pandoc_attributes, syntax_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ContentSHA, f.SpecificationRef, f.TypeRef, f.FromFile, f.FileSeq, f.StartLine, f.Label, f.Anchor,
		f.Number, nullIfEmpty(f.Caption), f.RawContent, nullIfEmpty(f.RawAST), nullIfEmpty(f.ResolvedAST),
		f.ParentObjectID, nullIfEmpty(f.PandocAttributes), nullIfEmpty(f.SyntaxKey))
	if err != nil {
		return 0, fmt.Errorf("failed to insert float %s: %w", f.Label, err)
	}
	return res.LastInsertId()
}

// ListSpecFloatsByCounterGroup returns a specification's floats whose
// type belongs to counterGroup, ordered by file_seq (§4.8).
func ListSpecFloatsByCounterGroup(ctx context.Context, s *Store, specID int64, typeRefs []string) ([]models.SpecFloat, error) {
	if len(typeRefs) == 0 {
		return nil, nil
	}
	query := `SELECT id, content_sha, specification_ref, type_ref, from_file, file_seq, start_line, label, anchor, number, caption, raw_content, raw_ast, resolved_ast, parent_object_id, pandoc_attributes, syntax_key
		FROM spec_floats WHERE specification_ref = ? AND type_ref IN (` + placeholders(len(typeRefs)) + `) ORDER BY file_seq ASC`
	args := append([]any{specID}, toAnySlice(typeRefs)...)

	var out []models.SpecFloat
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		f, err := scanSpecFloat(rows)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}, query, args...)
	return out, err
}

// ListSpecFloats returns every float in specID ordered by file_seq.
func ListSpecFloats(ctx context.Context, s *Store, specID int64) ([]models.SpecFloat, error) {
	var out []models.SpecFloat
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		f, err := scanSpecFloat(rows)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}, `SELECT id, content_sha, specification_ref, type_ref, from_file, file_seq, start_line, label, anchor, number, caption, raw_content, raw_ast, resolved_ast, parent_object_id, pandoc_attributes, syntax_key
		FROM spec_floats WHERE specification_ref = ? ORDER BY file_seq ASC`, specID)
	return out, err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows so a single
// column-scan body can serve list and single-row lookups alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpecFloat(rows *sql.Rows) (models.SpecFloat, error) {
	return scanSpecFloatRow(rows)
}

func scanSpecFloatRow(row rowScanner) (models.SpecFloat, error) {
	var f models.SpecFloat
	var anchor, caption, rawAST, resolvedAST, pandocAttrs, syntaxKey sql.NullString
	var number sql.NullInt64
	var parentObjID sql.NullInt64
	if err := row.Scan(&f.ID, &f.ContentSHA, &f.SpecificationRef, &f.TypeRef, &f.FromFile, &f.FileSeq,
		&f.StartLine, &f.Label, &anchor, &number, &caption, &f.RawContent, &rawAST, &resolvedAST,
		&parentObjID, &pandocAttrs, &syntaxKey); err != nil {
		return f, err
	}
	f.Anchor, f.Caption, f.RawAST, f.ResolvedAST = anchor.String, caption.String, rawAST.String, resolvedAST.String
	f.PandocAttributes, f.SyntaxKey = pandocAttrs.String, syntaxKey.String
	if number.Valid {
		n := number.Int64
		f.Number = &n
	}
	if parentObjID.Valid {
		id := parentObjID.Int64
		f.ParentObjectID = &id
	}
	return f, nil
}

// UpdateSpecFloatNumber persists a float's assigned sequence number
// (§4.8).
func UpdateSpecFloatNumber(ctx context.Context, q Querier, id int64, number int64) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_floats SET number = ? WHERE id = ?`, number, id)
	return err
}

// UpdateSpecFloatResolvedAST persists the External Render Orchestrator's
// or an internal transformer's output (§4.9, §4.10).
func UpdateSpecFloatResolvedAST(ctx context.Context, q Querier, id int64, resolvedAST string) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_floats SET resolved_ast = ? WHERE id = ?`, resolvedAST, id)
	return err
}

// InsertSpecView inserts a new view row, returning its id.
func InsertSpecView(ctx context.Context, q Querier, v *models.SpecView) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO spec_views (content_sha, specification_ref, type_ref, from_file, file_seq, start_line, label, anchor, raw_content, raw_ast, resolved_ast, resolved_data, parent_object_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ContentSHA, v.SpecificationRef, v.TypeRef, v.FromFile, v.FileSeq, v.StartLine,
		nullIfEmpty(v.Label), nullIfEmpty(v.Anchor), nullIfEmpty(v.RawContent), nullIfEmpty(v.RawAST),
		nullIfEmpty(v.ResolvedAST), nullIfEmpty(v.ResolvedData), v.ParentObjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert view: %w", err)
	}
	return res.LastInsertId()
}

// ListSpecViews returns every view in specID ordered by file_seq.
func ListSpecViews(ctx context.Context, s *Store, specID int64) ([]models.SpecView, error) {
	var out []models.SpecView
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var v models.SpecView
		var label, anchor, rawContent, rawAST, resolvedAST, resolvedData sql.NullString
		var parentObjID sql.NullInt64
		if err := rows.Scan(&v.ID, &v.ContentSHA, &v.SpecificationRef, &v.TypeRef, &v.FromFile, &v.FileSeq,
			&v.StartLine, &label, &anchor, &rawContent, &rawAST, &resolvedAST, &resolvedData, &parentObjID); err != nil {
			return err
		}
		v.Label, v.Anchor, v.RawContent = label.String, anchor.String, rawContent.String
		v.RawAST, v.ResolvedAST, v.ResolvedData = rawAST.String, resolvedAST.String, resolvedData.String
		if parentObjID.Valid {
			id := parentObjID.Int64
			v.ParentObjectID = &id
		}
		out = append(out, v)
		return nil
	}, `SELECT id, content_sha, specification_ref, type_ref, from_file, file_seq, start_line, label, anchor, raw_content, raw_ast, resolved_ast, resolved_data, parent_object_id
		FROM spec_views WHERE specification_ref = ? ORDER BY file_seq ASC`, specID)
	return out, err
}

// UpdateSpecViewResolvedData persists the View Materializer's output
// (§4.12).
func UpdateSpecViewResolvedData(ctx context.Context, q Querier, id int64, resolvedData string) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_views SET resolved_data = ? WHERE id = ?`, resolvedData, id)
	return err
}

// UpdateSpecViewResolvedAST persists an externally-rendered view's
// output (e.g. inline math, §4.9).
func UpdateSpecViewResolvedAST(ctx context.Context, q Querier, id int64, resolvedAST string) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_views SET resolved_ast = ? WHERE id = ?`, resolvedAST, id)
	return err
}

// InsertSpecRelation inserts an unresolved relation row harvested during
// INITIALIZE (§4.5 step 5).
func InsertSpecRelation(ctx context.Context, q Querier, r *models.SpecRelation) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO spec_relations (specification_ref, source_object_id, target_text, target_object_id, target_float_id, type_ref, link_selector, source_attribute, from_file, link_line, is_ambiguous)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SpecificationRef, r.SourceObjectID, r.TargetText, r.TargetObjectID, r.TargetFloatID,
		r.TypeRef, r.LinkSelector, r.SourceAttribute, r.FromFile, r.LinkLine, r.IsAmbiguous)
	if err != nil {
		return 0, fmt.Errorf("failed to insert relation: %w", err)
	}
	return res.LastInsertId()
}

// ListUnresolvedRelations returns every relation in specID with a null
// type_ref (§4.7).
func ListUnresolvedRelations(ctx context.Context, s *Store, specID int64) ([]models.SpecRelation, error) {
	return queryRelations(ctx, s, `SELECT id, specification_ref, source_object_id, target_text, target_object_id, target_float_id, type_ref, link_selector, source_attribute, from_file, link_line, is_ambiguous
		FROM spec_relations WHERE specification_ref = ? AND type_ref IS NULL`, specID)
}

// ListSpecRelations returns every relation belonging to specID.
func ListSpecRelations(ctx context.Context, s *Store, specID int64) ([]models.SpecRelation, error) {
	return queryRelations(ctx, s, `SELECT id, specification_ref, source_object_id, target_text, target_object_id, target_float_id, type_ref, link_selector, source_attribute, from_file, link_line, is_ambiguous
		FROM spec_relations WHERE specification_ref = ?`, specID)
}

func queryRelations(ctx context.Context, s *Store, query string, specID int64) ([]models.SpecRelation, error) {
	var out []models.SpecRelation
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var r models.SpecRelation
		var sourceObjID, targetObjID, targetFloatID sql.NullInt64
		var typeRef, sourceAttr sql.NullString
		if err := rows.Scan(&r.ID, &r.SpecificationRef, &sourceObjID, &r.TargetText, &targetObjID, &targetFloatID,
			&typeRef, &r.LinkSelector, &sourceAttr, &r.FromFile, &r.LinkLine, &r.IsAmbiguous); err != nil {
			return err
		}
		if sourceObjID.Valid {
			id := sourceObjID.Int64
			r.SourceObjectID = &id
		}
		if targetObjID.Valid {
			id := targetObjID.Int64
			r.TargetObjectID = &id
		}
		if targetFloatID.Valid {
			id := targetFloatID.Int64
			r.TargetFloatID = &id
		}
		if typeRef.Valid {
			v := typeRef.String
			r.TypeRef = &v
		}
		if sourceAttr.Valid {
			v := sourceAttr.String
			r.SourceAttribute = &v
		}
		out = append(out, r)
		return nil
	}, query, specID)
	return out, err
}

// ResolveRelation updates a relation's target and type columns after
// analysis (§4.7).
func ResolveRelation(ctx context.Context, q Querier, id int64, targetObjectID, targetFloatID *int64, typeRef string, ambiguous bool) error {
	_, err := q.ExecContext(ctx, `UPDATE spec_relations SET target_object_id = ?, target_float_id = ?, type_ref = ?, is_ambiguous = ? WHERE id = ?`,
		targetObjectID, targetFloatID, typeRef, ambiguous, id)
	return err
}

// StaleReferenceSweep nulls target_object_id/target_float_id/type_ref on
// every relation whose target row has since been deleted (§4.7, §8
// invariant 4), and returns the distinct specification_refs touched so
// the driver can extend the analyzer's working set.
func StaleReferenceSweep(ctx context.Context, q Querier) ([]int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE spec_relations SET target_object_id = NULL, type_ref = NULL, is_ambiguous = 0
		WHERE target_object_id IS NOT NULL
		  AND target_object_id NOT IN (SELECT id FROM spec_objects)`)
	if err != nil {
		return nil, fmt.Errorf("stale object reference sweep failed: %w", err)
	}
	_ = res

	if _, err := q.ExecContext(ctx, `
		UPDATE spec_relations SET target_float_id = NULL, type_ref = NULL, is_ambiguous = 0
		WHERE target_float_id IS NOT NULL
		  AND target_float_id NOT IN (SELECT id FROM spec_floats)`); err != nil {
		return nil, fmt.Errorf("stale float reference sweep failed: %w", err)
	}

	var specs []int64
	err = forEachRow(ctx, q, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		specs = append(specs, id)
		return nil
	}, `SELECT DISTINCT specification_ref FROM spec_relations WHERE type_ref IS NULL`)
	return specs, err
}

func forEachRow(ctx context.Context, q Querier, visit func(*sql.Rows) error, query string, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := visit(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func boolPtrToInt(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
