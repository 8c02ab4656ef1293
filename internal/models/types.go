package models

// AttributeTypeDef declares one attribute slot on an ObjectType (§4.3).
type AttributeTypeDef struct {
	Name       string
	Datatype   AttributeDatatype
	MinOccurs  int
	MaxOccurs  int
	MinValue   *float64
	MaxValue   *float64
	EnumValues []string
}

// ObjectType is a type definition for SpecObjects (§4.3).
type ObjectType struct {
	Identifier  string
	LongName    string
	Extends     string
	IsComposite bool
	IsDefault   bool
	PIDPrefix   string
	PIDFormat   string // printf-style with %s and %d
	Aliases     []string
	Attributes  []AttributeTypeDef
}

// FloatType is a type definition for SpecFloats (§4.3).
type FloatType struct {
	Identifier          string
	CaptionFormat       string
	CounterGroup        string
	Aliases             []string
	StyleID             string
	NeedsExternalRender bool
}

// RelationType is a type definition for SpecRelations (§4.3, §4.7.2).
type RelationType struct {
	Identifier      string
	Extends         string
	LinkSelector    string
	SourceTypeRef   string
	TargetTypeRef   string
	SourceAttribute string
	Aliases         []string
	IsDefault       bool
}

// ViewMaterializerType enumerates §4.3's `materializer_type`.
type ViewMaterializerType string

const (
	MaterializerTOC         ViewMaterializerType = "toc"
	MaterializerLOF         ViewMaterializerType = "lof"
	MaterializerAbbrevList  ViewMaterializerType = "abbrev_list"
	MaterializerCustom      ViewMaterializerType = "custom"
)

// ViewType is a type definition for SpecViews (§4.3).
type ViewType struct {
	Identifier          string
	InlinePrefix        string
	Aliases             []string
	CounterGroup        string
	ViewSubtypeRef      string
	MaterializerType    ViewMaterializerType
	NeedsExternalRender bool
}

// SpecificationType is a type definition for Specifications (§4.3).
type SpecificationType struct {
	Identifier string
	Extends    string
	IsDefault  bool
}

// SourceFile is a row of the persistent source-hash table (§3).
type SourceFile struct {
	Path string
	SHA1 string
}

// BuildGraphEdge is one include edge of a root document (§3).
type BuildGraphEdge struct {
	RootPath string
	NodePath string
	NodeSHA1 string
}

// OutputCacheEntry is the last-emitted fingerprint for one (document,
// output format) pair (§3).
type OutputCacheEntry struct {
	SpecID      int64
	OutputPath  string
	PIRHash     string
	GeneratedAt int64
}
