// Package migrate runs versioned schema scripts and one-off seed scripts
// against Postgres. Every script runs in its own transaction together with
// the journal row that marks it done, so a failed script leaves no trace.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"mototumen.org/internal/obs"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
	seedSuffix = ".sql"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ErrNoneApplied is returned by Down when the journal is empty.
var ErrNoneApplied = errors.New("migrate: no migrations applied")

// MissingDownError reports an applied migration that has no rollback script.
type MissingDownError struct {
	Name string
}

func (e *MissingDownError) Error() string {
	return "migrate: no down script for " + e.Name
}

// Applied is one journal entry.
type Applied struct {
	Name      string
	AppliedAt time.Time
}

// journal pairs a script source with the table recording which of its
// scripts already ran.
type journal struct {
	kind    string
	table   string
	scripts fs.FS
	suffix  string
}

// Manager applies the schema and seed scripts.
type Manager struct {
	db     *sql.DB
	schema journal
	seeds  journal
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMigrationsTable renames the schema journal table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.schema.table = name
		}
	}
}

// WithSeedsTable renames the seed journal table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seeds.table = name
		}
	}
}

// NewManager reads schema scripts (*.up.sql with optional *.down.sql) from
// migrations and seed scripts (*.sql) from seeds. A nil seeds disables Seed.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		schema: journal{kind: "migration", table: "schema_migrations", scripts: migrations, suffix: upSuffix},
		seeds:  journal{kind: "seed", table: "schema_seeds", scripts: seeds, suffix: seedSuffix},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every schema script not yet in the journal, in name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyPending(ctx, m.schema)
}

// Seed applies every seed script not yet in the journal. Seeds never roll back.
func (m *Manager) Seed(ctx context.Context) error {
	if m.seeds.scripts == nil {
		return nil
	}
	return m.applyPending(ctx, m.seeds)
}

// Down reverts the most recently applied schema script.
func (m *Manager) Down(ctx context.Context) error {
	done, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return ErrNoneApplied
	}
	last := done[len(done)-1].Name
	downs, err := collectSQL(m.schema.scripts, downSuffix)
	if err != nil {
		return err
	}
	want := strings.TrimSuffix(last, upSuffix) + downSuffix
	idx := sort.Search(len(downs), func(i int) bool { return downs[i].Base >= want })
	if idx == len(downs) || downs[idx].Base != want {
		return &MissingDownError{Name: last}
	}

	query, args, err := psql.Delete(m.schema.table).Where(squirrel.Eq{"name": last}).ToSql()
	if err != nil {
		return err
	}
	start := time.Now()
	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if err := runScript(ctx, tx, m.schema.scripts, downs[idx].Path); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("roll back migration %s: %w", last, err)
	}
	obs.Logger().Info("migration rolled back", zap.String("name", last), zap.Duration("took", time.Since(start)))
	return nil
}

// Status lists applied schema scripts, oldest first.
func (m *Manager) Status(ctx context.Context) ([]Applied, error) {
	if err := m.prepare(ctx, m.schema); err != nil {
		return nil, err
	}
	return m.applied(ctx, m.schema)
}

func (m *Manager) applyPending(ctx context.Context, j journal) error {
	if err := m.prepare(ctx, j); err != nil {
		return err
	}
	done, err := m.applied(ctx, j)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(done))
	for _, a := range done {
		seen[a.Name] = struct{}{}
	}
	scripts, err := collectSQL(j.scripts, j.suffix)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if _, ok := seen[s.Base]; ok {
			continue
		}
		query, args, err := psql.Insert(j.table).Columns("name", "applied_at").Values(s.Base, m.now()).ToSql()
		if err != nil {
			return err
		}
		start := time.Now()
		err = m.inTx(ctx, func(tx *sql.Tx) error {
			if err := runScript(ctx, tx, j.scripts, s.Path); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s %s: %w", j.kind, s.Base, err)
		}
		obs.Logger().Info(j.kind+" applied", zap.String("name", s.Base), zap.Duration("took", time.Since(start)))
	}
	return nil
}

func (m *Manager) prepare(ctx context.Context, j journal) error {
	ddl := "create table if not exists " + j.table +
		" (name text primary key, applied_at timestamptz not null default now())"
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s journal: %w", j.kind, err)
	}
	return nil
}

func (m *Manager) applied(ctx context.Context, j journal) ([]Applied, error) {
	query, args, err := psql.Select("name", "applied_at").From(j.table).OrderBy("applied_at", "name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s journal: %w", j.kind, err)
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (m *Manager) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func runScript(ctx context.Context, tx *sql.Tx, fsys fs.FS, path string) error {
	body, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type sqlFile struct {
	Base string
	Path string
}

// collectSQL finds files ending in suffix anywhere under fsys, sorted by base
// name. Down scripts never match the up suffix and vice versa.
func collectSQL(fsys fs.FS, suffix string) ([]sqlFile, error) {
	if fsys == nil {
		return nil, nil
	}
	var files []sqlFile
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, suffix) {
			return nil
		}
		if suffix == seedSuffix && (strings.HasSuffix(name, upSuffix) || strings.HasSuffix(name, downSuffix)) {
			return nil
		}
		files = append(files, sqlFile{Base: name, Path: path})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}

// splitStatements cuts a script at top-level semicolons. Single-quoted
// strings and dollar-quoted bodies pass through whole; line comments are
// dropped.
func splitStatements(script string) []string {
	var (
		out []string
		buf strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(buf.String()); stmt != "" {
			out = append(out, stmt)
		}
		buf.Reset()
	}
	for i := 0; i < len(script); {
		switch c := script[i]; {
		case strings.HasPrefix(script[i:], "--"):
			nl := strings.IndexByte(script[i:], '\n')
			if nl < 0 {
				i = len(script)
				continue
			}
			i += nl
		case c == '\'':
			end := closingQuote(script, i)
			buf.WriteString(script[i:end])
			i = end
		case c == '$':
			tag, ok := dollarTag(script[i:])
			if !ok {
				buf.WriteByte(c)
				i++
				continue
			}
			end := len(script)
			if j := strings.Index(script[i+len(tag):], tag); j >= 0 {
				end = i + len(tag) + j + len(tag)
			}
			buf.WriteString(script[i:end])
			i = end
		case c == ';':
			buf.WriteByte(c)
			flush()
			i++
		default:
			buf.WriteByte(c)
			i++
		}
	}
	flush()
	return out
}

// closingQuote returns the index just past the quote closing the string that
// opens at start. Doubled quotes are escapes.
func closingQuote(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != '\'' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// dollarTag matches $$ or $name$ at the start of s.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1], true
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 1:
		default:
			return "", false
		}
	}
	return "", false
}
