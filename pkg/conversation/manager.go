// Package conversation is the context manager: a durable, append-only
// per-chat message log over a single-file sqlite store.
package conversation

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // register the pure-Go sqlite driver

	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultHistoryLimit bounds History results when the caller passes
// limit <= 0 and the config carries no override.
const DefaultHistoryLimit = 50

// Format names a provider wire shape for Formatted.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
)

// FormattedMessage is the role/content dictionary provider APIs accept.
type FormattedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Manager owns the conversation store. All writes are durable before
// the call returns; sqlite serializes them while reads stay concurrent.
type Manager struct {
	db           *sql.DB
	historyLimit int
}

// New opens (creating if needed) the sqlite store at cfg.DBPath and
// applies pending migrations.
func New(cfg *config.ContextConfig) (*Manager, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging conversation store: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating conversation store: %w", err)
	}

	limit := cfg.MaxContextMessages
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	slog.Info("Conversation store opened", "db_path", cfg.DBPath)
	return &Manager{db: db, historyLimit: limit}, nil
}

// runMigrations applies the embedded schema migrations. The source
// driver is closed explicitly; closing the database driver would close
// the shared *sql.DB with it.
func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	if err := source.Close(); err != nil {
		slog.Warn("Failed to close migration source", "error", err)
	}
	return nil
}

// Add appends one message to a chat. Durable before return.
func (m *Manager) Add(ctx context.Context, chatID string, role models.Role, content, iface string, metadata map[string]any) error {
	if chatID == "" {
		return errs.Validation("chat_id is required")
	}
	if !role.IsValid() {
		return errs.Validation("unknown role " + string(role))
	}

	var metaJSON sql.NullString
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return errs.Validation("metadata is not serializable").WithCause(err)
		}
		metaJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at, interface, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chatID, string(role), content, time.Now().UnixMilli(), iface, metaJSON)
	if err != nil {
		return errs.Database("appending message").WithCause(err).WithDetail("chat_id", chatID)
	}
	return nil
}

// History returns up to limit most recent messages in chronological
// order. limit <= 0 falls back to the configured default; system
// messages are excluded unless includeSystem is set.
func (m *Manager) History(ctx context.Context, chatID string, limit int, includeSystem bool) ([]models.Message, error) {
	if limit <= 0 {
		limit = m.historyLimit
	}

	query := `SELECT role, content, created_at, interface, metadata
	          FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if !includeSystem {
		query += ` AND role != ?`
		args = append(args, string(models.RoleSystem))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Database("loading history").WithCause(err).WithDetail("chat_id", chatID)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			role, content, iface string
			createdAt            int64
			metaJSON             sql.NullString
		)
		if err := rows.Scan(&role, &content, &createdAt, &iface, &metaJSON); err != nil {
			return nil, errs.Database("scanning message").WithCause(err)
		}
		msg := models.Message{
			Role:      models.Role(role),
			Content:   content,
			Timestamp: time.UnixMilli(createdAt).UTC(),
			Interface: iface,
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &msg.Metadata); err != nil {
				slog.Warn("Dropping unreadable message metadata", "chat_id", chatID, "error", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("iterating history").WithCause(err)
	}

	// Restore chronological order: the query walked newest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Formatted shapes the history into the role/content dictionaries the
// named provider API accepts. The anthropic shape carries no system
// messages (the API takes the system prompt out of band).
func (m *Manager) Formatted(ctx context.Context, chatID string, limit int, format Format) ([]FormattedMessage, error) {
	var includeSystem bool
	switch format {
	case FormatOpenAI:
		includeSystem = true
	case FormatAnthropic:
		includeSystem = false
	default:
		return nil, errs.Validation("unknown history format " + string(format))
	}

	history, err := m.History(ctx, chatID, limit, includeSystem)
	if err != nil {
		return nil, err
	}

	out := make([]FormattedMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, FormattedMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out, nil
}

// Clear removes every message of a chat. Destructive, unconditional.
func (m *Manager) Clear(ctx context.Context, chatID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return errs.Database("clearing chat").WithCause(err).WithDetail("chat_id", chatID)
	}
	slog.Info("Conversation cleared", "chat_id", chatID)
	return nil
}

// Summary describes a chat's stored history. Unknown chats fail with
// context-not-found.
func (m *Manager) Summary(ctx context.Context, chatID string) (*models.ConversationSummary, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MIN(created_at), 0), COALESCE(MAX(created_at), 0)
		 FROM messages WHERE chat_id = ?`, chatID)

	var total int
	var firstMS, lastMS int64
	if err := row.Scan(&total, &firstMS, &lastMS); err != nil {
		return nil, errs.Database("summarizing chat").WithCause(err).WithDetail("chat_id", chatID)
	}
	if total == 0 {
		return nil, errs.ContextNotFound(chatID)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT DISTINCT interface FROM messages WHERE chat_id = ? AND interface != '' ORDER BY interface`, chatID)
	if err != nil {
		return nil, errs.Database("listing chat interfaces").WithCause(err)
	}
	defer rows.Close()

	var interfaces []string
	for rows.Next() {
		var iface string
		if err := rows.Scan(&iface); err != nil {
			return nil, errs.Database("scanning chat interface").WithCause(err)
		}
		interfaces = append(interfaces, iface)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("iterating chat interfaces").WithCause(err)
	}

	return &models.ConversationSummary{
		ChatID:        chatID,
		TotalMessages: total,
		FirstTS:       time.UnixMilli(firstMS).UTC(),
		LastTS:        time.UnixMilli(lastMS).UTC(),
		Interfaces:    interfaces,
	}, nil
}

// GC removes messages older than daysToKeep days and returns how many
// were removed.
func (m *Manager) GC(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, errs.InvalidParams("days_to_keep must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -daysToKeep).UnixMilli()
	res, err := m.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errs.Database("garbage-collecting messages").WithCause(err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Database("counting removed messages").WithCause(err)
	}
	if removed > 0 {
		slog.Info("Conversation GC removed messages", "removed", removed, "days_kept", daysToKeep)
	}
	return removed, nil
}

// Close releases the store.
func (m *Manager) Close() error {
	return m.db.Close()
}

// ChatID builds the conventional chat id for an interface-native id.
func ChatID(iface, nativeID string) string {
	return strings.Join([]string{iface, nativeID}, "_")
}
