// Package models holds the SPEC-IR row types (§3) shared by every
// pipeline component. These are plain data carriers; all persistence
// and invariant enforcement lives in the store package.
package models

// Specification is the root container for one input document (§3).
type Specification struct {
	ID        int64
	Identifier string
	RootPath  string
	LongName  string
	TypeRef   string
	PID       string
	HeaderAST string // serialized AST for the rendered title, set in TRANSFORM
	BodyAST   string
}

// SpecObject is a typed, numbered, titled heading-scoped element (§3).
type SpecObject struct {
	ID               int64
	ContentSHA       string
	SpecificationRef int64
	TypeRef          string
	FromFile         string
	FileSeq          int64
	PID              string
	PIDPrefix        string
	PIDSequence      int64
	PIDAutoGenerated bool
	TitleText        string
	Label            string
	Level            int
	StartLine        int
	EndLine          int
	AST              string // the heading node itself
	BodyAST          string // ordinary narrative blocks between this heading and the next
}

// AttributeDatatype enumerates the seven datatypes an attribute value is
// cast to (§3).
type AttributeDatatype string

const (
	DatatypeString  AttributeDatatype = "STRING"
	DatatypeInteger AttributeDatatype = "INTEGER"
	DatatypeReal    AttributeDatatype = "REAL"
	DatatypeBoolean AttributeDatatype = "BOOLEAN"
	DatatypeDate    AttributeDatatype = "DATE"
	DatatypeEnum    AttributeDatatype = "ENUM"
	DatatypeXHTML   AttributeDatatype = "XHTML"
)

// AttributeValue is an EAV row keyed to an owning object or float (§3).
// Exactly one of the six typed columns is populated after casting;
// OwnerObjectID xor OwnerFloatID is non-zero.
type AttributeValue struct {
	ID            int64
	OwnerObjectID int64
	OwnerFloatID  int64
	Name          string
	RawValue      string
	Datatype      AttributeDatatype
	StringValue   *string
	IntValue      *int64
	RealValue     *float64
	BoolValue     *bool
	DateValue     *string // YYYY-MM-DD
	EnumRef       *string
	AST           string // rich (XHTML) attribute body
	XHTMLValue    string
}

// SpecFloat is a numbered, captioned artifact (§3).
type SpecFloat struct {
	ID                int64
	ContentSHA        string
	SpecificationRef  int64
	TypeRef           string
	FromFile          string
	FileSeq           int64
	StartLine         int
	Label             string
	Anchor            string
	Number            *int64
	Caption           string
	RawContent        string
	RawAST            string
	ResolvedAST       string
	ParentObjectID    *int64
	PandocAttributes  string
	SyntaxKey         string
}

// SpecView is an inline or block placeholder for generated content (§3).
type SpecView struct {
	ID               int64
	ContentSHA       string
	SpecificationRef int64
	TypeRef          string
	FromFile         string
	FileSeq          int64
	StartLine        int
	Label            string
	Anchor           string
	RawContent       string
	RawAST           string
	ResolvedAST      string
	ResolvedData     string // JSON payload for materialized content
	ParentObjectID   *int64
}

// SpecRelation is a directed edge between a source object and a target
// object-or-float (§3). A resolved relation has exactly one non-null
// target column and a non-null TypeRef.
type SpecRelation struct {
	ID               int64
	SpecificationRef int64
	SourceObjectID   *int64
	TargetText       string
	TargetObjectID   *int64
	TargetFloatID    *int64
	TypeRef          *string
	LinkSelector     string
	SourceAttribute  *string
	FromFile         string
	LinkLine         int
	IsAmbiguous      bool
}

// Resolved reports whether the relation has both a target and a type.
func (r *SpecRelation) Resolved() bool {
	return r.TypeRef != nil && (r.TargetObjectID != nil || r.TargetFloatID != nil)
}
