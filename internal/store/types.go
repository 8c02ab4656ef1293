package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// LoadTypes persists a typeregistry.Model into the type-definition tables.
// Called once at startup after ensureSchema has cleared them (§4.1, §4.3).
// The phase handlers read type definitions from the in-memory Model they
// are constructed with; these tables hold a copy of it.
func (s *Store) LoadTypes(ctx context.Context, m *typeregistry.Model) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ot := range m.Objects {
		if err := insertObjectType(ctx, tx.Querier(), ot); err != nil {
			return fmt.Errorf("object type %s: %w", ot.Identifier, err)
		}
	}
	for _, ft := range m.Floats {
		if err := insertFloatType(ctx, tx.Querier(), ft); err != nil {
			return fmt.Errorf("float type %s: %w", ft.Identifier, err)
		}
	}
	for _, rt := range m.Relations {
		if err := insertRelationType(ctx, tx.Querier(), rt); err != nil {
			return fmt.Errorf("relation type %s: %w", rt.Identifier, err)
		}
	}
	for _, vt := range m.Views {
		if err := insertViewType(ctx, tx.Querier(), vt); err != nil {
			return fmt.Errorf("view type %s: %w", vt.Identifier, err)
		}
	}
	for _, st := range m.Specifications {
		if err := insertSpecificationType(ctx, tx.Querier(), st); err != nil {
			return fmt.Errorf("specification type %s: %w", st.Identifier, err)
		}
	}

	return tx.Commit()
}

func insertObjectType(ctx context.Context, q Querier, ot models.ObjectType) error {
	aliases, err := json.Marshal(ot.Aliases)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO object_types (identifier, long_name, extends, is_composite, is_default, pid_prefix, pid_format, aliases, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]')
		ON CONFLICT(identifier) DO UPDATE SET
			long_name=excluded.long_name, extends=excluded.extends, is_composite=excluded.is_composite,
			is_default=excluded.is_default, pid_prefix=excluded.pid_prefix, pid_format=excluded.pid_format,
			aliases=excluded.aliases`,
		ot.Identifier, ot.LongName, nullIfEmpty(ot.Extends), ot.IsComposite, ot.IsDefault,
		nullIfEmpty(ot.PIDPrefix), nullIfEmpty(ot.PIDFormat), string(aliases))
	if err != nil {
		return err
	}

	for _, attr := range ot.Attributes {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO attribute_types (object_type_ref, name, datatype, min_occurs, max_occurs, min_value, max_value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(object_type_ref, name) DO UPDATE SET
				datatype=excluded.datatype, min_occurs=excluded.min_occurs, max_occurs=excluded.max_occurs,
				min_value=excluded.min_value, max_value=excluded.max_value`,
			ot.Identifier, attr.Name, string(attr.Datatype), attr.MinOccurs, attr.MaxOccurs,
			attr.MinValue, attr.MaxValue); err != nil {
			return fmt.Errorf("attribute %s: %w", attr.Name, err)
		}
		for _, v := range attr.EnumValues {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO enum_values (object_type_ref, attribute_name, value) VALUES (?, ?, ?)
				ON CONFLICT(object_type_ref, attribute_name, value) DO NOTHING`,
				ot.Identifier, attr.Name, v); err != nil {
				return fmt.Errorf("enum value %s.%s=%s: %w", ot.Identifier, attr.Name, v, err)
			}
		}
	}
	return nil
}

func insertFloatType(ctx context.Context, q Querier, ft models.FloatType) error {
	aliases, err := json.Marshal(ft.Aliases)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO float_types (identifier, caption_format, counter_group, aliases, style_id, needs_external_render)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			caption_format=excluded.caption_format, counter_group=excluded.counter_group,
			aliases=excluded.aliases, style_id=excluded.style_id,
			needs_external_render=excluded.needs_external_render`,
		ft.Identifier, ft.CaptionFormat, nullIfEmpty(ft.CounterGroup), string(aliases),
		nullIfEmpty(ft.StyleID), ft.NeedsExternalRender)
	return err
}

func insertRelationType(ctx context.Context, q Querier, rt models.RelationType) error {
	aliases, err := json.Marshal(rt.Aliases)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO relation_types (identifier, extends, link_selector, source_type_ref, target_type_ref, source_attribute, aliases, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			extends=excluded.extends, link_selector=excluded.link_selector,
			source_type_ref=excluded.source_type_ref, target_type_ref=excluded.target_type_ref,
			source_attribute=excluded.source_attribute, aliases=excluded.aliases, is_default=excluded.is_default`,
		rt.Identifier, nullIfEmpty(rt.Extends), nullIfEmpty(rt.LinkSelector),
		nullIfEmpty(rt.SourceTypeRef), nullIfEmpty(rt.TargetTypeRef), nullIfEmpty(rt.SourceAttribute),
		string(aliases), rt.IsDefault)
	return err
}

func insertViewType(ctx context.Context, q Querier, vt models.ViewType) error {
	aliases, err := json.Marshal(vt.Aliases)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO view_types (identifier, inline_prefix, aliases, counter_group, view_subtype_ref, materializer_type, needs_external_render)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			inline_prefix=excluded.inline_prefix, aliases=excluded.aliases, counter_group=excluded.counter_group,
			view_subtype_ref=excluded.view_subtype_ref, materializer_type=excluded.materializer_type,
			needs_external_render=excluded.needs_external_render`,
		vt.Identifier, nullIfEmpty(vt.InlinePrefix), string(aliases), nullIfEmpty(vt.CounterGroup),
		nullIfEmpty(vt.ViewSubtypeRef), string(vt.MaterializerType), vt.NeedsExternalRender)
	return err
}

func insertSpecificationType(ctx context.Context, q Querier, st models.SpecificationType) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO specification_types (identifier, extends, is_default) VALUES (?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET extends=excluded.extends, is_default=excluded.is_default`,
		st.Identifier, nullIfEmpty(st.Extends), st.IsDefault)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
