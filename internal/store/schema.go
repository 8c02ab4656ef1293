package store

// schemaSQL defines the SPEC-IR content tables, the type-definition
// tables, and the build/cache tables (§3). Type and content tables are
// versionless: dropped and recreated on every Open() per §4.1's
// "Schema is versionless by construction" contract. Build/cache tables
// persist across runs and are never dropped here.
const schemaSQL = `
-- ==========================================================
-- Content tables (rows deleted per-specification on dirty
-- rebuild; "clean-cache" leaves them in place)
-- ==========================================================

CREATE TABLE IF NOT EXISTS specifications (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier       TEXT NOT NULL UNIQUE,
	root_path        TEXT NOT NULL,
	long_name        TEXT NOT NULL,
	type_ref         TEXT NOT NULL,
	pid              TEXT,
	header_ast       TEXT,
	body_ast         TEXT
);

CREATE TABLE IF NOT EXISTS spec_objects (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	content_sha        TEXT NOT NULL,
	specification_ref  INTEGER NOT NULL REFERENCES specifications(id),
	type_ref           TEXT NOT NULL,
	from_file          TEXT NOT NULL,
	file_seq           INTEGER NOT NULL,
	pid                TEXT,
	pid_prefix         TEXT,
	pid_sequence       INTEGER,
	pid_auto_generated INTEGER NOT NULL DEFAULT 0,
	title_text         TEXT NOT NULL,
	label              TEXT NOT NULL,
	level              INTEGER NOT NULL,
	start_line         INTEGER NOT NULL,
	end_line           INTEGER NOT NULL,
	ast                TEXT,
	body_ast           TEXT,
	UNIQUE(specification_ref, file_seq),
	UNIQUE(specification_ref, label)
);
CREATE INDEX IF NOT EXISTS idx_spec_objects_spec ON spec_objects(specification_ref);
CREATE UNIQUE INDEX IF NOT EXISTS idx_spec_objects_pid ON spec_objects(specification_ref, pid) WHERE pid IS NOT NULL;

CREATE TABLE IF NOT EXISTS attribute_values (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_object_id INTEGER REFERENCES spec_objects(id),
	owner_float_id  INTEGER REFERENCES spec_floats(id),
	name            TEXT NOT NULL,
	raw_value       TEXT NOT NULL,
	datatype        TEXT NOT NULL,
	string_value    TEXT,
	int_value       INTEGER,
	real_value      REAL,
	bool_value      INTEGER,
	date_value      TEXT,
	enum_ref        TEXT,
	ast             TEXT,
	xhtml_value     TEXT
);
CREATE INDEX IF NOT EXISTS idx_attribute_values_object ON attribute_values(owner_object_id);
CREATE INDEX IF NOT EXISTS idx_attribute_values_float ON attribute_values(owner_float_id);
CREATE INDEX IF NOT EXISTS idx_attribute_values_name ON attribute_values(name);

CREATE TABLE IF NOT EXISTS spec_floats (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	content_sha         TEXT NOT NULL,
	specification_ref   INTEGER NOT NULL REFERENCES specifications(id),
	type_ref            TEXT NOT NULL,
	from_file           TEXT NOT NULL,
	file_seq            INTEGER NOT NULL,
	start_line          INTEGER NOT NULL,
	label               TEXT NOT NULL,
	anchor              TEXT NOT NULL,
	number              INTEGER,
	caption             TEXT,
	raw_content         TEXT NOT NULL,
	raw_ast             TEXT,
	resolved_ast        TEXT,
	parent_object_id    INTEGER REFERENCES spec_objects(id),
	pandoc_attributes   TEXT,
	syntax_key          TEXT,
	UNIQUE(specification_ref, label)
);
CREATE INDEX IF NOT EXISTS idx_spec_floats_spec ON spec_floats(specification_ref);
CREATE INDEX IF NOT EXISTS idx_spec_floats_type ON spec_floats(type_ref);
CREATE INDEX IF NOT EXISTS idx_spec_floats_content_sha ON spec_floats(content_sha);

CREATE TABLE IF NOT EXISTS spec_views (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	content_sha        TEXT NOT NULL,
	specification_ref  INTEGER NOT NULL REFERENCES specifications(id),
	type_ref           TEXT NOT NULL,
	from_file          TEXT NOT NULL,
	file_seq           INTEGER NOT NULL,
	start_line         INTEGER NOT NULL,
	label              TEXT,
	anchor             TEXT,
	raw_content        TEXT,
	raw_ast            TEXT,
	resolved_ast       TEXT,
	resolved_data      TEXT,
	parent_object_id   INTEGER REFERENCES spec_objects(id)
);
CREATE INDEX IF NOT EXISTS idx_spec_views_spec ON spec_views(specification_ref);

CREATE TABLE IF NOT EXISTS spec_relations (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	specification_ref  INTEGER NOT NULL REFERENCES specifications(id),
	source_object_id   INTEGER REFERENCES spec_objects(id),
	target_text        TEXT NOT NULL,
	target_object_id   INTEGER,
	target_float_id    INTEGER,
	type_ref           TEXT,
	link_selector      TEXT NOT NULL,
	source_attribute   TEXT,
	from_file          TEXT NOT NULL,
	link_line          INTEGER NOT NULL,
	is_ambiguous       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_spec_relations_spec ON spec_relations(specification_ref);
CREATE INDEX IF NOT EXISTS idx_spec_relations_unresolved ON spec_relations(type_ref) WHERE type_ref IS NULL;
CREATE INDEX IF NOT EXISTS idx_spec_relations_target_obj ON spec_relations(target_object_id);
CREATE INDEX IF NOT EXISTS idx_spec_relations_target_float ON spec_relations(target_float_id);

-- ==========================================================
-- Type-definition tables (dropped and reloaded from the model
-- overlay tree on every startup)
-- ==========================================================

CREATE TABLE IF NOT EXISTS object_types (
	identifier     TEXT PRIMARY KEY,
	long_name      TEXT NOT NULL,
	extends        TEXT,
	is_composite   INTEGER NOT NULL DEFAULT 0,
	is_default     INTEGER NOT NULL DEFAULT 0,
	pid_prefix     TEXT,
	pid_format     TEXT,
	aliases        TEXT,
	attributes     TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS float_types (
	identifier            TEXT PRIMARY KEY,
	caption_format        TEXT NOT NULL,
	counter_group         TEXT,
	aliases               TEXT,
	style_id              TEXT,
	needs_external_render INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relation_types (
	identifier       TEXT PRIMARY KEY,
	extends          TEXT,
	link_selector    TEXT,
	source_type_ref  TEXT,
	target_type_ref  TEXT,
	source_attribute TEXT,
	aliases          TEXT,
	is_default       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS view_types (
	identifier            TEXT PRIMARY KEY,
	inline_prefix         TEXT,
	aliases               TEXT,
	counter_group         TEXT,
	view_subtype_ref      TEXT,
	materializer_type     TEXT NOT NULL,
	needs_external_render INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS specification_types (
	identifier  TEXT PRIMARY KEY,
	extends     TEXT,
	is_default  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS datatype_definitions (
	identifier  TEXT PRIMARY KEY,
	kind        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attribute_types (
	object_type_ref  TEXT NOT NULL,
	name             TEXT NOT NULL,
	datatype         TEXT NOT NULL,
	min_occurs       INTEGER NOT NULL DEFAULT 0,
	max_occurs       INTEGER NOT NULL DEFAULT 1,
	min_value        REAL,
	max_value        REAL,
	PRIMARY KEY (object_type_ref, name)
);

CREATE TABLE IF NOT EXISTS enum_values (
	object_type_ref  TEXT NOT NULL,
	attribute_name   TEXT NOT NULL,
	value            TEXT NOT NULL,
	PRIMARY KEY (object_type_ref, attribute_name, value)
);

-- ==========================================================
-- Build graph and caches (persist across runs)
-- ==========================================================

CREATE TABLE IF NOT EXISTS source_files (
	path  TEXT PRIMARY KEY,
	sha1  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS build_graph (
	root_path   TEXT NOT NULL,
	node_path   TEXT NOT NULL,
	node_sha1   TEXT NOT NULL,
	PRIMARY KEY (root_path, node_path)
);

CREATE TABLE IF NOT EXISTS output_cache (
	spec_id       INTEGER NOT NULL,
	output_path   TEXT NOT NULL,
	pir_hash      TEXT NOT NULL,
	generated_at  INTEGER NOT NULL,
	PRIMARY KEY (spec_id, output_path)
);

CREATE TABLE IF NOT EXISTS kv_store (
	key          TEXT PRIMARY KEY,
	value        TEXT NOT NULL,
	updated_at   INTEGER NOT NULL
);

-- ==========================================================
-- Full-text indices (populated in EMIT)
-- ==========================================================

CREATE VIRTUAL TABLE IF NOT EXISTS fts_objects USING fts5(
	title_text, content, specification_ref UNINDEXED, object_id UNINDEXED,
	tokenize = 'porter unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_attributes USING fts5(
	name, string_value, specification_ref UNINDEXED, owner_object_id UNINDEXED,
	tokenize = 'porter unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_floats USING fts5(
	caption, content, specification_ref UNINDEXED, float_id UNINDEXED,
	tokenize = 'porter unicode61'
);
`

// contentTables is the set of SPEC-IR content tables (the content
// itself, not type defs, not build/cache state). "clean-cache" does not
// clear them; it clears cacheTables only.
var contentTables = []string{
	"spec_relations",
	"spec_views",
	"spec_floats",
	"attribute_values",
	"spec_objects",
	"specifications",
}

// typeTables are dropped and rebuilt from the model overlay on every run.
var typeTables = []string{
	"enum_values",
	"attribute_types",
	"datatype_definitions",
	"specification_types",
	"view_types",
	"relation_types",
	"float_types",
	"object_types",
}

// cacheTables are the build-graph and output-cache tables cleared by the
// "clean-cache" subcommand (§ SPEC_FULL.md Supplemented Features).
var cacheTables = []string{
	"output_cache",
	"build_graph",
	"source_files",
}
