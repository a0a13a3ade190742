package postgres

import "strings"

// Типы, которые отличаются между диалектами
var dialectTypes = map[Dialect]*strings.Replacer{
	Postgres: strings.NewReplacer(
		"{{serial}}", "BIGSERIAL PRIMARY KEY",
		"{{float}}", "DOUBLE PRECISION",
		"{{ts}}", "TIMESTAMPTZ",
		"{{bool}}", "BOOLEAN",
	),
	SQLite: strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{float}}", "REAL",
		"{{ts}}", "TIMESTAMP",
		"{{bool}}", "BOOLEAN",
	),
}

var schemaTemplate = []string{
	`CREATE TABLE IF NOT EXISTS moderation_ledger (
		id               {{serial}},
		entity_kind      TEXT        NOT NULL,
		entity_id        BIGINT      NOT NULL,
		content_snapshot TEXT        NOT NULL,
		confidence       {{float}}   NULL,
		status           SMALLINT    NOT NULL DEFAULT 0,
		reason           TEXT        NULL,
		task_id          TEXT        NOT NULL DEFAULT '',
		version          BIGINT      NOT NULL DEFAULT 1,
		submitted_at     BIGINT      NOT NULL DEFAULT 0,
		created_at       {{ts}}      NOT NULL,
		updated_at       {{ts}}      NOT NULL,
		UNIQUE (entity_kind, entity_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_status_updated ON moderation_ledger (status, updated_at)`,

	`CREATE TABLE IF NOT EXISTS books (
		id                      {{serial}},
		author_id               BIGINT   NOT NULL DEFAULT 0,
		title                   TEXT     NOT NULL,
		description             TEXT     NOT NULL DEFAULT '',
		audit_status            SMALLINT NOT NULL DEFAULT 0,
		audit_reason            TEXT     NULL,
		audit_task_id           TEXT     NOT NULL DEFAULT '',
		latest_chapter_id       BIGINT   NULL,
		latest_chapter_sequence INTEGER  NULL,
		latest_chapter_title    TEXT     NULL,
		created_at              {{ts}}   NOT NULL,
		updated_at              {{ts}}   NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chapters (
		id              {{serial}},
		book_id         BIGINT   NOT NULL REFERENCES books (id),
		sequence_number INTEGER  NOT NULL,
		title           TEXT     NOT NULL,
		content         TEXT     NOT NULL,
		audit_status    SMALLINT NOT NULL DEFAULT 0,
		audit_reason    TEXT     NULL,
		audit_task_id   TEXT     NOT NULL DEFAULT '',
		created_at      {{ts}}   NOT NULL,
		updated_at      {{ts}}   NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chapters_book_status_seq ON chapters (book_id, audit_status, sequence_number)`,

	`CREATE TABLE IF NOT EXISTS audit_runs (
		id          TEXT PRIMARY KEY,
		task_id     TEXT      NOT NULL,
		entity_kind TEXT      NOT NULL,
		entity_id   BIGINT    NOT NULL,
		segments    INTEGER   NOT NULL DEFAULT 0,
		status      SMALLINT  NOT NULL,
		confidence  {{float}} NOT NULL DEFAULT 0,
		reason      TEXT      NOT NULL DEFAULT '',
		outcome     TEXT      NOT NULL,
		degraded    {{bool}}  NOT NULL DEFAULT FALSE,
		operator    TEXT      NOT NULL DEFAULT '',
		duration_ms BIGINT    NOT NULL DEFAULT 0,
		error       TEXT      NOT NULL DEFAULT '',
		created_at  {{ts}}    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_runs_created ON audit_runs (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_runs_task ON audit_runs (task_id)`,

	`CREATE TABLE IF NOT EXISTS operators (
		id            TEXT PRIMARY KEY,
		username      TEXT   NOT NULL UNIQUE,
		password_hash TEXT   NOT NULL,
		scopes        TEXT   NOT NULL DEFAULT '{}',
		created_at    {{ts}} NOT NULL
	)`,
}

func schema(d Dialect) []string {
	r := dialectTypes[d]
	out := make([]string, len(schemaTemplate))
	for i, s := range schemaTemplate {
		out[i] = r.Replace(s)
	}
	return out
}
