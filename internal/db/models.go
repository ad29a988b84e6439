package db

import (
	"encoding/json"
	"time"
)

// RawStatement maps corpus.raw_statements. Ingestion writes these rows;
// this service only reads them.
type RawStatement struct {
	RawStatementID   int64           `gorm:"column:raw_statement_id;primaryKey;autoIncrement"`
	RawStatementUUID string          `gorm:"column:raw_statement_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	InputUnitID      int64           `gorm:"column:input_unit_id;type:bigint;not null"`
	SourceKind       string          `gorm:"column:source_kind;type:text;not null"`
	ContentUnitID    int64           `gorm:"column:content_unit_id;type:bigint;not null"`
	Extractor        string          `gorm:"column:extractor;type:text;not null"`
	ExtractorVersion string          `gorm:"column:extractor_version;type:text;not null"`
	RunID            int64           `gorm:"column:run_id;type:bigint;not null"`
	RelationType     string          `gorm:"column:relation_type;type:text;not null"`
	Content          json.RawMessage `gorm:"column:content;type:jsonb;not null"`
	Evidence         json.RawMessage `gorm:"column:evidence;type:jsonb;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RawStatement) TableName() string { return "corpus.raw_statements" }

// CanonicalStatement maps corpus.canonical_statements, keyed by the shallow
// content fingerprint.
type CanonicalStatement struct {
	MkHash       int64           `gorm:"column:mk_hash;primaryKey"`
	RelationType string          `gorm:"column:relation_type;type:text;not null"`
	Content      json.RawMessage `gorm:"column:content;type:jsonb;not null"`
	Evidence     json.RawMessage `gorm:"column:evidence;type:jsonb;not null"`
	MemberIDs    json.RawMessage `gorm:"column:member_ids;type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (CanonicalStatement) TableName() string { return "corpus.canonical_statements" }

// RawUniqueLinkRow maps corpus.raw_unique_links: one row per surviving raw
// statement, pointing at the canonical statement it folded into.
type RawUniqueLinkRow struct {
	RawStatementID int64     `gorm:"column:raw_statement_id;primaryKey"`
	MkHash         int64     `gorm:"column:mk_hash;type:bigint;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RawUniqueLinkRow) TableName() string { return "corpus.raw_unique_links" }

// RefinementLinkRow maps corpus.refinement_links: a directed edge from the
// more specific canonical statement to the more general one.
type RefinementLinkRow struct {
	SupportingHash int64     `gorm:"column:supporting_hash;primaryKey"`
	SupportedHash  int64     `gorm:"column:supported_hash;primaryKey"`
	RelationType   string    `gorm:"column:relation_type;type:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RefinementLinkRow) TableName() string { return "corpus.refinement_links" }

// CorpusUpdateRow maps corpus.corpus_updates. One row per completed run;
// the newest row is the watermark.
type CorpusUpdateRow struct {
	CorpusUpdateID int64     `gorm:"column:corpus_update_id;primaryKey;autoIncrement"`
	RunType        string    `gorm:"column:run_type;type:text;not null"`
	RelationType   string    `gorm:"column:relation_type;type:text;not null;default:''"`
	LastRecordID   int64     `gorm:"column:last_record_id;type:bigint;not null"`
	CompletedAt    time.Time `gorm:"column:completed_at;type:timestamptz;not null;default:now()"`
}

func (CorpusUpdateRow) TableName() string { return "corpus.corpus_updates" }

// ExtractorVersionRow maps corpus.extractor_versions, the reader-version
// priority table. Higher rank is more preferred within an extractor.
type ExtractorVersionRow struct {
	Extractor string    `gorm:"column:extractor;type:text;primaryKey"`
	Version   string    `gorm:"column:version;type:text;primaryKey"`
	Rank      int       `gorm:"column:rank;type:integer;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ExtractorVersionRow) TableName() string { return "corpus.extractor_versions" }

func autoMigrateModels() []any {
	return []any{
		&RawStatement{},
		&CanonicalStatement{},
		&RawUniqueLinkRow{},
		&RefinementLinkRow{},
		&CorpusUpdateRow{},
		&ExtractorVersionRow{},
	}
}
