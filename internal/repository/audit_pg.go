package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const maxAuditPage = 1000

// PostgresAuditRepo keeps the request trail next to the replay ledger. The
// order id is lifted out of the context blob so settlement disputes can be
// traced with an index lookup.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

type auditRow struct {
	ID            string    `db:"id"`
	CallerID      string    `db:"caller_id"`
	OrderID       string    `db:"order_id"`
	Method        string    `db:"method"`
	Path          string    `db:"path"`
	IP            string    `db:"ip"`
	UserAgent     string    `db:"user_agent"`
	RequestBody   string    `db:"request_body"`
	RequestHeader string    `db:"request_header"`
	StatusCode    int       `db:"status_code"`
	ResponseBody  string    `db:"response_body"`
	LatencyMs     int64     `db:"latency_ms"`
	Context       []byte    `db:"context"`
	CreatedAt     time.Time `db:"created_at"`
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		logger.Error("ensure audit schema failed", "error", err)
	}
	return repo
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("encode audit context: %w", err)
	}
	row := auditRow{
		ID:            entry.ID,
		CallerID:      entry.CallerID,
		OrderID:       entry.OrderID(),
		Method:        entry.Method,
		Path:          entry.Path,
		IP:            entry.IP,
		UserAgent:     entry.UserAgent,
		RequestBody:   entry.RequestBody,
		RequestHeader: entry.RequestHeader,
		StatusCode:    entry.StatusCode,
		ResponseBody:  entry.ResponseBody,
		LatencyMs:     entry.LatencyMs,
		Context:       contextJSON,
		CreatedAt:     entry.CreatedAt,
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO settlement_audit (
			id, caller_id, order_id, method, path, ip, user_agent,
			request_body, request_header, status_code, response_body,
			latency_ms, context, created_at
		) VALUES (
			:id, :caller_id, :order_id, :method, :path, :ip, :user_agent,
			:request_body, :request_header, :status_code, :response_body,
			:latency_ms, :context, :created_at
		)
		ON CONFLICT (id) DO NOTHING
	`, row)
	return err
}

func (r *PostgresAuditRepo) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxAuditPage {
		limit = 100
	}

	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.CallerID != "" {
		add("caller_id = $%d", q.CallerID)
	}
	if q.OrderID != "" {
		add("order_id = $%d", q.OrderID)
	}
	if q.From != nil {
		add("created_at >= $%d", *q.From)
	}
	if q.To != nil {
		add("created_at <= $%d", *q.To)
	}

	query := `SELECT * FROM settlement_audit`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	records := make([]*model.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := &model.AuditLog{
			ID:            row.ID,
			CallerID:      row.CallerID,
			Method:        row.Method,
			Path:          row.Path,
			IP:            row.IP,
			UserAgent:     row.UserAgent,
			RequestBody:   row.RequestBody,
			RequestHeader: row.RequestHeader,
			StatusCode:    row.StatusCode,
			ResponseBody:  row.ResponseBody,
			LatencyMs:     row.LatencyMs,
			Context:       map[string]interface{}{},
			CreatedAt:     row.CreatedAt,
		}
		if len(row.Context) > 0 {
			if err := json.Unmarshal(row.Context, &entry.Context); err != nil {
				logger.Warn("corrupt audit context", "request_id", row.ID, "error", err)
			}
		}
		records = append(records, entry)
	}
	return records, nil
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settlement_audit (
			id TEXT PRIMARY KEY,
			caller_id TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			request_body TEXT NOT NULL DEFAULT '',
			request_header TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			latency_ms BIGINT NOT NULL DEFAULT 0,
			context JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS settlement_audit_caller ON settlement_audit (caller_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS settlement_audit_order ON settlement_audit (order_id) WHERE order_id <> ''`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM settlement_audit WHERE created_at < $1`, cutoff)
	return err
}
