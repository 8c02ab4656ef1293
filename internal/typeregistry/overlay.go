// Package typeregistry loads object, float, relation, view, and
// specification type definitions from a model overlay tree (§4.3): a
// default model, then a project model overlay loaded on top of it,
// registered by upsert-by-identifier so the project overlay may replace
// or extend the default. The loading convention (embedded default +
// directory override, same file-extension-per-category layout) mirrors
// `internal/templates/templates.go`'s embed.FS + directory-override
// resolution order.
package typeregistry

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/speccompiler/internal/models"
)

//go:embed default
var defaultModel embed.FS

var validate = validator.New()

// objectTypeFile is the TOML shape of one `types/objects/*.toml` file.
type objectTypeFile struct {
	Identifier  string             `toml:"identifier" validate:"required"`
	LongName    string             `toml:"long_name"`
	Extends     string             `toml:"extends"`
	IsComposite bool               `toml:"is_composite"`
	IsDefault   bool               `toml:"is_default"`
	PIDPrefix   string             `toml:"pid_prefix"`
	PIDFormat   string             `toml:"pid_format"`
	Aliases     []string           `toml:"aliases"`
	Attributes  []attributeTypeTOML `toml:"attributes"`
}

type attributeTypeTOML struct {
	Name       string   `toml:"name" validate:"required"`
	Datatype   string   `toml:"datatype"`
	MinOccurs  int      `toml:"min_occurs"`
	MaxOccurs  int      `toml:"max_occurs"`
	MinValue   *float64 `toml:"min_value"`
	MaxValue   *float64 `toml:"max_value"`
	EnumValues []string `toml:"enum_values"`
}

type floatTypeFile struct {
	Identifier          string   `toml:"identifier" validate:"required"`
	CaptionFormat       string   `toml:"caption_format"`
	CounterGroup        string   `toml:"counter_group"`
	Aliases             []string `toml:"aliases"`
	StyleID             string   `toml:"style_id"`
	NeedsExternalRender bool     `toml:"needs_external_render"`
}

type relationTypeFile struct {
	Identifier      string   `toml:"identifier" validate:"required"`
	Extends         string   `toml:"extends"`
	LinkSelector    string   `toml:"link_selector"`
	SourceTypeRef   string   `toml:"source_type_ref"`
	TargetTypeRef   string   `toml:"target_type_ref"`
	SourceAttribute string   `toml:"source_attribute"`
	Aliases         []string `toml:"aliases"`
	IsDefault       bool     `toml:"is_default"`
}

type viewTypeFile struct {
	Identifier          string   `toml:"identifier" validate:"required"`
	InlinePrefix        string   `toml:"inline_prefix"`
	Aliases             []string `toml:"aliases"`
	CounterGroup        string   `toml:"counter_group"`
	ViewSubtypeRef      string   `toml:"view_subtype_ref"`
	MaterializerType    string   `toml:"materializer_type" validate:"required,oneof=toc lof abbrev_list custom"`
	NeedsExternalRender bool     `toml:"needs_external_render"`
}

type specificationTypeFile struct {
	Identifier string `toml:"identifier" validate:"required"`
	Extends    string `toml:"extends"`
	IsDefault  bool   `toml:"is_default"`
}

// Model is the fully loaded, in-memory type registry, built by merging
// the embedded default overlay with an optional project overlay
// directory. Store.LoadTypes persists Model into the type-definition
// tables; the phase handlers hold a Model reference and read type
// definitions from it rather than from those tables.
type Model struct {
	Objects        map[string]models.ObjectType
	Floats         map[string]models.FloatType
	Relations      map[string]models.RelationType
	Views          map[string]models.ViewType
	Specifications map[string]models.SpecificationType
}

func newModel() *Model {
	return &Model{
		Objects:        map[string]models.ObjectType{},
		Floats:         map[string]models.FloatType{},
		Relations:      map[string]models.RelationType{},
		Views:          map[string]models.ViewType{},
		Specifications: map[string]models.SpecificationType{},
	}
}

// Load builds a Model from the embedded default overlay, then the
// project overlay directory (if non-empty), upserting by identifier so
// the project overlay wins on conflicts.
func Load(projectOverlayDir string) (*Model, error) {
	m := newModel()

	if err := loadFS(m, defaultModel, "default"); err != nil {
		return nil, fmt.Errorf("failed to load default model: %w", err)
	}

	if projectOverlayDir != "" {
		if err := loadDir(m, projectOverlayDir); err != nil {
			return nil, fmt.Errorf("failed to load project model overlay %s: %w", projectOverlayDir, err)
		}
	}

	return m, nil
}

func loadFS(m *Model, fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".toml") {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		return registerFile(m, path, data)
	})
}

func loadDir(m *Model, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".toml") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return registerFile(m, path, data)
	})
}

// registerFile dispatches a type file to the right category based on
// its containing directory (`types/{category}/*.toml`, §4.3).
func registerFile(m *Model, path string, data []byte) error {
	category := categoryOf(path)
	switch category {
	case "objects":
		var t objectTypeFile
		if err := toml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if t.PIDFormat != "" {
			if !strings.Contains(t.PIDFormat, "%s") && !strings.Contains(t.PIDFormat, "%d") {
				return fmt.Errorf("%s: pid_format %q must contain %%s and/or %%d", path, t.PIDFormat)
			}
		}
		m.Objects[t.Identifier] = toObjectType(t)
	case "floats":
		var t floatTypeFile
		if err := toml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m.Floats[t.Identifier] = models.FloatType{
			Identifier: t.Identifier, CaptionFormat: t.CaptionFormat,
			CounterGroup: t.CounterGroup, Aliases: t.Aliases,
			StyleID: t.StyleID, NeedsExternalRender: t.NeedsExternalRender,
		}
	case "relations":
		var t relationTypeFile
		if err := toml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m.Relations[t.Identifier] = models.RelationType{
			Identifier: t.Identifier, Extends: t.Extends, LinkSelector: t.LinkSelector,
			SourceTypeRef: t.SourceTypeRef, TargetTypeRef: t.TargetTypeRef,
			SourceAttribute: t.SourceAttribute, Aliases: t.Aliases, IsDefault: t.IsDefault,
		}
	case "views":
		var t viewTypeFile
		if err := toml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m.Views[t.Identifier] = models.ViewType{
			Identifier: t.Identifier, InlinePrefix: t.InlinePrefix, Aliases: t.Aliases,
			CounterGroup: t.CounterGroup, ViewSubtypeRef: t.ViewSubtypeRef,
			MaterializerType: models.ViewMaterializerType(t.MaterializerType),
			NeedsExternalRender: t.NeedsExternalRender,
		}
	case "specifications":
		var t specificationTypeFile
		if err := toml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m.Specifications[t.Identifier] = models.SpecificationType{
			Identifier: t.Identifier, Extends: t.Extends, IsDefault: t.IsDefault,
		}
	default:
		return fmt.Errorf("%s: unrecognized type category directory", path)
	}
	return nil
}

func categoryOf(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, p := range parts {
		if (p == "objects" || p == "floats" || p == "relations" || p == "views" || p == "specifications") && i > 0 {
			return p
		}
	}
	return ""
}

func toObjectType(t objectTypeFile) models.ObjectType {
	attrs := make([]models.AttributeTypeDef, 0, len(t.Attributes))
	for _, a := range t.Attributes {
		dt := models.AttributeDatatype(strings.ToUpper(a.Datatype))
		if dt == "" {
			dt = models.DatatypeString
		}
		maxOccurs := a.MaxOccurs
		if maxOccurs == 0 {
			maxOccurs = 1
		}
		attrs = append(attrs, models.AttributeTypeDef{
			Name: a.Name, Datatype: dt, MinOccurs: a.MinOccurs, MaxOccurs: maxOccurs,
			MinValue: a.MinValue, MaxValue: a.MaxValue, EnumValues: a.EnumValues,
		})
	}
	return models.ObjectType{
		Identifier: t.Identifier, LongName: t.LongName, Extends: t.Extends,
		IsComposite: t.IsComposite, IsDefault: t.IsDefault,
		PIDPrefix: t.PIDPrefix, PIDFormat: t.PIDFormat, Aliases: t.Aliases, Attributes: attrs,
	}
}
