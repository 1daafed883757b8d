// Package partition manages time-sharded partition tables.
//
// Every uid owns a timeline of partitions named "<keyword>-<uid>-<yyyymmdd>".
// All partitions share one fixed row schema; the table name selects the
// shard. Partitions are created on demand and never dropped.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jittakal/poolstore/internal/database"
	apperrors "github.com/jittakal/poolstore/internal/errors"
)

// Catalog is the slice of the relational engine the manager needs.
type Catalog interface {
	ListTables(ctx context.Context, prefix string) ([]string, error)
	CreateTable(ctx context.Context, table string, schema database.Schema) error
	CountRows(ctx context.Context, table string) (int64, error)
}

// MetricsCollector defines the interface for partition metrics.
type MetricsCollector interface {
	IncPartitionsCreated(keyword string)
}

// Config configures a Manager.
type Config struct {
	Schema   database.Schema
	Policy   RolloverPolicy
	CacheTTL time.Duration
	Location *time.Location
}

type cacheKey struct {
	keyword string
	uid     string
}

type cacheEntry struct {
	name    string
	expires time.Time
}

// Manager names, lists, resolves and creates partitions.
type Manager struct {
	catalog  Catalog
	schema   database.Schema
	policy   RolloverPolicy
	cacheTTL time.Duration
	loc      *time.Location
	logger   *slog.Logger
	metrics  MetricsCollector
	now      func() time.Time

	mu     sync.Mutex
	active map[cacheKey]cacheEntry
}

// NewManager creates a partition manager.
func NewManager(catalog Catalog, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Manager, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if len(cfg.Schema.Columns) == 0 {
		cfg.Schema = DefaultSchema()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		catalog:  catalog,
		schema:   cfg.Schema,
		policy:   cfg.Policy,
		cacheTTL: cfg.CacheTTL,
		loc:      cfg.Location,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		active:   make(map[cacheKey]cacheEntry),
	}, nil
}

// DefaultSchema is the row schema used when none is configured.
func DefaultSchema() database.Schema {
	return database.Schema{Columns: []database.Column{
		{Name: "id", Type: database.TypeString, PrimaryKey: true},
		{Name: "uid", Type: database.TypeString, NotNull: true},
		{Name: "kind", Type: database.TypeString},
		{Name: "amount", Type: database.TypeReal},
		{Name: "payload", Type: database.TypeText},
		{Name: "created_at", Type: database.TypeTimestamp, NotNull: true},
	}}
}

// Schema returns the row schema of every partition.
func (m *Manager) Schema() database.Schema {
	return m.schema
}

// NameFor returns the partition name of uid for the day containing at.
func (m *Manager) NameFor(keyword, uid string, at time.Time) string {
	return Partition{Keyword: keyword, UID: uid, Created: at.In(m.loc)}.Name()
}

// ListPartitions returns every partition whose leading token is keyword.
func (m *Manager) ListPartitions(ctx context.Context, keyword string) ([]string, error) {
	parts, err := m.partitions(ctx, keyword)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Name()
	}
	return names, nil
}

// TimelineFor groups partition timestamps by uid in ascending order. An
// empty uids selects every uid.
func (m *Manager) TimelineFor(ctx context.Context, keyword string, uids []string) (map[string][]time.Time, error) {
	parts, err := m.partitions(ctx, keyword)
	if err != nil {
		return nil, err
	}

	timeline := make(map[string][]time.Time)
	for _, p := range parts {
		if len(uids) > 0 && !slices.Contains(uids, p.UID) {
			continue
		}
		timeline[p.UID] = append(timeline[p.UID], p.Created)
	}
	for uid := range timeline {
		slices.SortFunc(timeline[uid], func(a, b time.Time) int { return a.Compare(b) })
		timeline[uid] = slices.CompactFunc(timeline[uid], func(a, b time.Time) bool { return a.Equal(b) })
	}
	return timeline, nil
}

// ResolveRange returns, per uid, the partition timestamps relevant to
// [start, end]. A zero end means now. Uids with no matching partition are
// omitted.
func (m *Manager) ResolveRange(ctx context.Context, keyword string, uids []string, start, end time.Time) (map[string][]time.Time, error) {
	if end.IsZero() {
		end = m.now()
	}
	timeline, err := m.TimelineFor(ctx, keyword, uids)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string][]time.Time, len(timeline))
	for uid, ts := range timeline {
		if window := resolveWindow(ts, start, end); len(window) > 0 {
			resolved[uid] = window
		}
	}
	return resolved, nil
}

// ResolveTables is ResolveRange returning partition names.
func (m *Manager) ResolveTables(ctx context.Context, keyword string, uids []string, start, end time.Time) (map[string][]string, error) {
	resolved, err := m.ResolveRange(ctx, keyword, uids, start, end)
	if err != nil {
		return nil, err
	}

	tables := make(map[string][]string, len(resolved))
	for uid, ts := range resolved {
		for _, t := range ts {
			tables[uid] = append(tables[uid], m.NameFor(keyword, uid, t))
		}
	}
	return tables, nil
}

// ActivePartitionFor returns, per uid, the newest partition.
func (m *Manager) ActivePartitionFor(ctx context.Context, keyword string, uids []string) (map[string]string, error) {
	timeline, err := m.TimelineFor(ctx, keyword, uids)
	if err != nil {
		return nil, err
	}

	active := make(map[string]string, len(timeline))
	for uid, ts := range timeline {
		active[uid] = m.NameFor(keyword, uid, ts[len(ts)-1])
	}
	return active, nil
}

// CreatePartition creates the table name with the manager's row schema.
func (m *Manager) CreatePartition(ctx context.Context, keyword, name string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "partition.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition.keyword", keyword),
		attribute.String("partition.name", name))

	p, err := Parse(name, m.loc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if p.Keyword != keyword {
		err := fmt.Errorf("partition %q does not belong to keyword %q", name, keyword)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := m.catalog.CreateTable(ctx, name, m.schema); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("create partition: %w", err)
	}

	if m.metrics != nil {
		m.metrics.IncPartitionsCreated(keyword)
	}
	m.logger.Info("partition created", "keyword", keyword, "partition", name)
	return nil
}

// CreatePartitionIfNeeded returns the partition new rows of uid should go
// to, creating today's partition when uid has none or the rollover policy
// says the active one is full. Results are cached for the configured TTL.
func (m *Manager) CreatePartitionIfNeeded(ctx context.Context, keyword, uid string) (string, error) {
	if err := ValidateKey(keyword, uid); err != nil {
		return "", err
	}

	now := m.now()
	key := cacheKey{keyword: keyword, uid: uid}
	if name, ok := m.cached(key, now); ok {
		return name, nil
	}

	active, err := m.ActivePartitionFor(ctx, keyword, []string{uid})
	if err != nil {
		return "", err
	}

	today := m.NameFor(keyword, uid, now)
	name, ok := active[uid]
	if !ok || (name != today && m.shouldRollover(ctx, name, now)) {
		if ok {
			m.logger.Info("partition rollover",
				"keyword", keyword,
				"uid", uid,
				"from", name,
				"to", today)
		}
		if err := m.CreatePartition(ctx, keyword, today); err != nil {
			return "", err
		}
		name = today
	}

	m.store(key, name, now)
	return name, nil
}

// ValidateKey checks that keyword and uid form a parseable partition name.
func ValidateKey(keyword, uid string) error {
	target := keyword + "/" + uid
	if keyword == "" || uid == "" {
		return &apperrors.ValidationError{Target: target, Field: "keyword", Reason: "keyword and uid are required"}
	}
	if strings.Contains(keyword, "-") {
		return &apperrors.ValidationError{Target: target, Field: "keyword", Reason: "must not contain '-'"}
	}
	return nil
}

func (m *Manager) shouldRollover(ctx context.Context, name string, now time.Time) bool {
	if m.policy == nil {
		return false
	}
	p, err := Parse(name, m.loc)
	if err != nil {
		return false
	}

	stats := Stats{Name: name, Created: p.Created}
	if m.policy.NeedsRowCount() {
		rows, err := m.catalog.CountRows(ctx, name)
		if err != nil {
			m.logger.Warn("failed to count partition rows", "partition", name, "error", err)
			return false
		}
		stats.Rows = rows
	}
	return m.policy.ShouldRollover(stats, now)
}

func (m *Manager) partitions(ctx context.Context, keyword string) ([]Partition, error) {
	tables, err := m.catalog.ListTables(ctx, keyword+"-")
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", keyword, err)
	}

	parts := make([]Partition, 0, len(tables))
	for _, t := range tables {
		p, err := Parse(t, m.loc)
		if err != nil || p.Keyword != keyword {
			continue
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func (m *Manager) cached(key cacheKey, now time.Time) (string, bool) {
	if m.cacheTTL <= 0 {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.active[key]
	if !ok || !now.Before(entry.expires) {
		return "", false
	}
	return entry.name, true
}

func (m *Manager) store(key cacheKey, name string, now time.Time) {
	if m.cacheTTL <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[key] = cacheEntry{name: name, expires: now.Add(m.cacheTTL)}
}

const tracerName = "github.com/jittakal/poolstore/internal/partition"
