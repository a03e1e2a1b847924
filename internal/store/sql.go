package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"
    _ "modernc.org/sqlite"

    "dispatchdesk/internal/config"
    "dispatchdesk/internal/model"
)

// New opens the store named by cfg.Driver.
func New(cfg config.DatabaseConfig) (Store, error) {
    switch cfg.Driver {
    case "", "memory":
        return NewMemory(), nil
    case "sqlite", "postgres":
        return Open(cfg)
    default:
        return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
    }
}

// SQL implements Store on database/sql for SQLite and PostgreSQL.
type SQL struct {
    db      *sql.DB
    driver  string
    dialect Dialect
    now     func() time.Time
}

func Open(cfg config.DatabaseConfig) (*SQL, error) {
    var (
        s   *SQL
        err error
    )
    switch cfg.Driver {
    case "sqlite":
        s, err = openSQLite(cfg.Path)
    case "postgres":
        s, err = openPostgres(cfg.DSN)
    default:
        return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
    }
    if err != nil {
        return nil, err
    }
    if _, err := s.db.Exec(schemaFor(s.dialect)); err != nil {
        s.db.Close()
        return nil, fmt.Errorf("migrate %s: %w", s.driver, err)
    }
    return s, nil
}

func openSQLite(path string) (*SQL, error) {
    dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
    db, err := sql.Open("sqlite", dsn)
    if err != nil {
        return nil, fmt.Errorf("open sqlite: %w", err)
    }
    db.SetMaxOpenConns(1)
    return &SQL{db: db, driver: "sqlite", dialect: sqliteDialect{}, now: time.Now}, nil
}

func openPostgres(dsn string) (*SQL, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, fmt.Errorf("open postgres: %w", err)
    }
    if err := db.Ping(); err != nil {
        db.Close()
        return nil, fmt.Errorf("ping postgres: %w", err)
    }
    return &SQL{db: db, driver: "postgres", dialect: postgresDialect{}, now: time.Now}, nil
}

func (s *SQL) Driver() string { return s.driver }

// q rewrites ? placeholders for PostgreSQL and passes SQLite queries through.
func (s *SQL) q(query string) string {
    if s.driver == "postgres" {
        return Rebind(query)
    }
    return query
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQL) Close() error                   { return s.db.Close() }

func millis(t time.Time) int64 { return t.UnixMilli() }
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *SQL) RecordDispatches(ctx context.Context, recs []model.DispatchRecord) error {
    if len(recs) == 0 {
        return nil
    }
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer tx.Rollback()
    stmt := s.q(`INSERT INTO dispatch_log (session_id, job_id, operator, success, message, at_ms) VALUES (?, ?, ?, ?, ?, ?)`)
    for _, r := range recs {
        at := r.At
        if at.IsZero() {
            at = s.now()
        }
        if _, err := tx.ExecContext(ctx, stmt, r.SessionID, r.JobID, r.Operator, r.Success, r.Message, millis(at)); err != nil {
            return fmt.Errorf("record dispatch %s: %w", r.JobID, err)
        }
    }
    return tx.Commit()
}

func (s *SQL) ListDispatches(ctx context.Context, q DispatchQuery) ([]model.DispatchRecord, string, error) {
    limit := clampLimit(q.Limit)
    query := `SELECT id, session_id, job_id, operator, success, message, at_ms FROM dispatch_log WHERE 1=1`
    var args []any
    if q.Cursor != "" {
        before, err := strconv.ParseInt(q.Cursor, 10, 64)
        if err != nil {
            return nil, "", fmt.Errorf("bad cursor: %w", err)
        }
        query += ` AND id < ?`
        args = append(args, before)
    }
    if q.JobID != "" {
        query += ` AND job_id = ?`
        args = append(args, q.JobID)
    }
    if q.SessionID != "" {
        query += ` AND session_id = ?`
        args = append(args, q.SessionID)
    }
    if q.Operator != "" {
        query += ` AND operator = ?`
        args = append(args, q.Operator)
    }
    query += ` ORDER BY id DESC LIMIT ?`
    args = append(args, limit)

    rows, err := s.db.QueryContext(ctx, s.q(query), args...)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []model.DispatchRecord{}
    for rows.Next() {
        var r model.DispatchRecord
        var at int64
        if err := rows.Scan(&r.ID, &r.SessionID, &r.JobID, &r.Operator, &r.Success, &r.Message, &at); err != nil {
            return nil, "", err
        }
        r.At = fromMillis(at)
        out = append(out, r)
    }
    if err := rows.Err(); err != nil {
        return nil, "", err
    }
    next := ""
    if len(out) == limit {
        next = strconv.FormatInt(out[len(out)-1].ID, 10)
    }
    return out, next, nil
}

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, err := json.Marshal(req.Events)
    if err != nil {
        return model.Subscription{}, err
    }
    _, err = s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions (id, url, events, secret, owner, created_ms) VALUES (?, ?, ?, ?, ?, ?)`),
        id, req.URL, string(ev), req.Secret, req.Owner, millis(s.now()))
    if err != nil {
        return model.Subscription{}, err
    }
    return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret, Owner: req.Owner}, nil
}

func (s *SQL) scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var sub model.Subscription
        var ev string
        if err := rows.Scan(&sub.ID, &sub.URL, &ev, &sub.Secret, &sub.Owner); err != nil {
            return nil, err
        }
        if err := json.Unmarshal([]byte(ev), &sub.Events); err != nil {
            return nil, fmt.Errorf("subscription %s events: %w", sub.ID, err)
        }
        out = append(out, sub)
    }
    return out, rows.Err()
}

// GetSubscriptionsForEvent filters in Go; the events column is a JSON array
// stored as text on both drivers.
func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT id, url, events, secret, owner FROM subscriptions ORDER BY created_ms, id`)
    if err != nil {
        return nil, err
    }
    all, err := s.scanSubscriptions(rows)
    if err != nil {
        return nil, err
    }
    var out []model.Subscription
    for _, sub := range all {
        for _, e := range sub.Events {
            if e == eventType || e == "*" {
                out = append(out, sub)
                break
            }
        }
    }
    return out, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    limit = clampLimit(limit)
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, url, events, secret, owner FROM subscriptions WHERE id > ? ORDER BY id LIMIT ?`), cursor, limit)
    } else {
        rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, url, events, secret, owner FROM subscriptions ORDER BY id LIMIT ?`), limit)
    }
    if err != nil {
        return nil, "", err
    }
    out, err := s.scanSubscriptions(rows)
    if err != nil {
        return nil, "", err
    }
    next := ""
    if len(out) == limit {
        next = out[len(out)-1].ID
    }
    return out, next, nil
}

func (s *SQL) DeleteSubscription(ctx context.Context, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE id = ?`), id)
    if err != nil {
        return err
    }
    return affected(res)
}

func affected(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}

// Webhook deliveries
func (s *SQL) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    now := millis(s.now())
    _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, dedup_key, status, attempts, next_attempt_ms, created_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`), id, subscriptionID, eventType, url, secret, payload, dk, now, now)
    if err != nil {
        return "", err
    }
    var got string
    err = s.db.QueryRowContext(ctx, s.q(`SELECT id FROM webhook_deliveries WHERE event_type = ? AND url = ? AND dedup_key = ?`), eventType, url, dk).Scan(&got)
    return got, err
}

const deliveryColumns = `id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_ms, last_error, response_code, latency_ms, delivered_ms`

func scanDelivery(sc interface{ Scan(...any) error }) (WebhookDelivery, error) {
    var d WebhookDelivery
    var next int64
    var delivered sql.NullInt64
    err := sc.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &next, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered)
    if err != nil {
        return d, err
    }
    d.NextAttemptAt = fromMillis(next)
    if delivered.Valid {
        t := fromMillis(delivered.Int64)
        d.DeliveredAt = &t
    }
    return d, nil
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 {
        limit = 50
    }
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+deliveryColumns+` FROM webhook_deliveries
        WHERE status IN ('pending','retry') AND next_attempt_ms <= ? ORDER BY next_attempt_ms, id LIMIT ?`), millis(s.now()), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        d, err := scanDelivery(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    var res sql.Result
    var err error
    if success {
        res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = 'delivered', delivered_ms = ?, response_code = ?, latency_ms = ? WHERE id = ?`),
            millis(s.now()), responseCode, latencyMs, id)
    } else {
        next := s.now().Add(time.Minute)
        if nextAttemptAt != nil {
            next = *nextAttemptAt
        }
        res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = 'retry', last_error = ?, next_attempt_ms = ?, response_code = ?, latency_ms = ? WHERE id = ?`),
            lastError, millis(next), responseCode, latencyMs, id)
    }
    if err != nil {
        return err
    }
    return affected(res)
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = 'failed', last_error = ?, response_code = ?, latency_ms = ? WHERE id = ?`),
        lastError, responseCode, latencyMs, id)
    if err != nil {
        return err
    }
    return affected(res)
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    limit = clampLimit(limit)
    query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE 1=1`
    var args []any
    if status != "" {
        query += ` AND status = ?`
        args = append(args, status)
    }
    if cursor != "" {
        var created int64
        err := s.db.QueryRowContext(ctx, s.q(`SELECT created_ms FROM webhook_deliveries WHERE id = ?`), cursor).Scan(&created)
        if errors.Is(err, sql.ErrNoRows) {
            return []WebhookDelivery{}, "", nil
        }
        if err != nil {
            return nil, "", err
        }
        query += ` AND (created_ms > ? OR (created_ms = ? AND id > ?))`
        args = append(args, created, created, cursor)
    }
    query += ` ORDER BY created_ms, id LIMIT ?`
    args = append(args, limit)
    rows, err := s.db.QueryContext(ctx, s.q(query), args...)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        d, err := scanDelivery(rows)
        if err != nil {
            return nil, "", err
        }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil {
        return nil, "", err
    }
    next := ""
    if len(out) == limit {
        next = out[len(out)-1].ID
    }
    return out, next, nil
}

func (s *SQL) RetryWebhookDelivery(ctx context.Context, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status = 'pending', next_attempt_ms = ? WHERE id = ?`), millis(s.now()), id)
    if err != nil {
        return err
    }
    return affected(res)
}
