package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
)

// Postgres is a TableStore backed by one relation per logical table:
//
//	CREATE TABLE <name> (
//	    partition_key TEXT NOT NULL,
//	    sort_key      TEXT NOT NULL,
//	    attributes    JSONB NOT NULL,
//	    version       BIGINT NOT NULL DEFAULT 1,
//	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (partition_key, sort_key)
//	)
//
// Upserts are last-writer-wins; version is bumped on every write and returned
// to readers as the _version metadata field.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
	log   zerolog.Logger
}

// allowed relation names; table is interpolated into SQL text and must never
// come from user input.
var allowedTables = map[string]bool{
	TableNameInvoices: true,
	TableNameVendors:  true,
	TableNameBudgets:  true,
}

// Relation names used by NewPostgres.
const (
	TableNameInvoices = "invoices"
	TableNameVendors  = "vendors"
	TableNameBudgets  = "budgets"
)

// NewPostgres creates a TableStore over the given pool and relation.
func NewPostgres(pool *pgxpool.Pool, table string, log zerolog.Logger) (*Postgres, error) {
	if !allowedTables[table] {
		return nil, errors.InvalidInput("table", fmt.Sprintf("unknown relation %q", table))
	}
	return &Postgres{pool: pool, table: table, log: log.With().Str("table", table).Logger()}, nil
}

func (p *Postgres) Get(ctx context.Context, partitionKey, sortKey string) (Entity, error) {
	query := fmt.Sprintf(`
		SELECT attributes, version, updated_at
		FROM %s
		WHERE partition_key = $1 AND sort_key = $2
	`, p.table)

	var (
		attrs     Entity
		version   int64
		updatedAt time.Time
	)
	err := p.pool.QueryRow(ctx, query, partitionKey, sortKey).Scan(&attrs, &version, &updatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("entity", partitionKey+"/"+sortKey)
		}
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to get entity")
	}

	attrs[MetaVersion] = version
	attrs[MetaTimestamp] = updatedAt.UTC().Format(time.RFC3339Nano)
	return attrs, nil
}

func (p *Postgres) Upsert(ctx context.Context, entity Entity, partitionKey, sortKey string) (string, error) {
	if partitionKey == "" || sortKey == "" {
		return "", errors.InvalidInput("key", "partition and sort keys are required")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (partition_key, sort_key, attributes, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (partition_key, sort_key)
		DO UPDATE SET attributes = EXCLUDED.attributes,
		              version    = %s.version + 1,
		              updated_at = now()
	`, p.table, p.table)

	clean := StripMetadata(cloneEntity(entity))
	if _, err := p.pool.Exec(ctx, query, partitionKey, sortKey, clean); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUnavailable, "failed to upsert entity")
	}
	return sortKey, nil
}

func (p *Postgres) Delete(ctx context.Context, partitionKey, sortKey string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND sort_key = $2`, p.table)

	tag, err := p.pool.Exec(ctx, query, partitionKey, sortKey)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to delete entity")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("entity", partitionKey+"/"+sortKey)
	}
	return nil
}

func (p *Postgres) QueryByFilters(ctx context.Context, filters []Filter, join JoinOperator) ([]Entity, error) {
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters)*2)

	for _, f := range filters {
		fieldArg := len(args) + 1
		valueArg := len(args) + 2
		if _, isNum := toFloat(f.Value); isNum {
			conds = append(conds, fmt.Sprintf("(attributes->>$%d)::numeric %s $%d",
				fieldArg, sqlOperator(f.Operator), valueArg))
		} else {
			conds = append(conds, fmt.Sprintf("attributes->>$%d %s $%d",
				fieldArg, sqlOperator(f.Operator), valueArg))
		}
		args = append(args, f.Field, f.Value)
	}

	sep := " AND "
	if join == JoinOr {
		sep = " OR "
	}
	where := "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, sep)
	}

	query := fmt.Sprintf(`
		SELECT attributes, version
		FROM %s
		WHERE %s
	`, p.table, where)

	return p.queryEntities(ctx, query, args...)
}

func (p *Postgres) QueryRange(ctx context.Context, partitionKey, lower, upper string) ([]Entity, error) {
	query := fmt.Sprintf(`
		SELECT attributes, version
		FROM %s
		WHERE partition_key = $1 AND sort_key >= $2 AND sort_key < $3
		ORDER BY sort_key
	`, p.table)

	return p.queryEntities(ctx, query, partitionKey, lower, upper)
}

func (p *Postgres) queryEntities(ctx context.Context, query string, args ...any) ([]Entity, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to query entities")
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var (
			attrs   Entity
			version int64
		)
		if err := rows.Scan(&attrs, &version); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to scan entity")
		}
		attrs[MetaVersion] = version
		out = append(out, attrs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to iterate entities")
	}
	return out, nil
}

// Close is a no-op; the pool is owned by the caller and shared between
// logical tables.
func (p *Postgres) Close() {}

func sqlOperator(op CompareOperator) string {
	switch op {
	case OpNotEqual:
		return "<>"
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	default:
		return "="
	}
}

func cloneEntity(e Entity) Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
