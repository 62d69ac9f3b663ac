// Package storage provides the bun/Postgres-backed TemplateStore and
// DefinitionStore the Execution Engine (C7) depends on, grounded on
// internal/infrastructure/storage/bun_store.go's model/table pattern
// (BaseModel tags, jsonb columns, NewXModel/ToDomain conversions,
// insert-or-update via ON CONFLICT) and internal/eventbus/database.go's
// narrower per-concern row style rather than the teacher's full
// Workflow/Node/Edge aggregate. New ids are ULIDs (github.com/oklog/ulid/v2,
// as used for row ids throughout the rakunlabs-at store package) rather
// than the teacher's uuid.UUID, since templates/definitions are
// created in roughly-sorted bulk import order and benefit from a
// lexically-sortable id.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
)

// Store is a bun-backed TemplateStore + DefinitionStore. The zero value is
// not usable; build one with NewStore.
type Store struct {
	db *bun.DB
}

// NewStore opens a lazy connection pool against dsn. Connection errors
// surface on first use, matching BunStore.NewBunStore's behavior.
func NewStore(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Store{db: db}
}

// NewStoreFromDB wraps an already-configured bun.DB (tests, shared pools).
func NewStoreFromDB(db *bun.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the templates/definitions tables if absent.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{
		(*templateRow)(nil),
		(*definitionRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
}

// --- templates ---

type templateRow struct {
	bun.BaseModel `bun:"table:templates,alias:t"`

	ID                 string         `bun:"id,pk"`
	Name               string         `bun:"name"`
	WorkflowType       string         `bun:"workflow_type"`
	DefaultParams      map[string]any `bun:"default_params,type:jsonb"`
	RequiredTools      []string       `bun:"required_tools,array"`
	RequiredRetrievers []string       `bun:"required_retrievers,array"`
	IsBuiltin          bool           `bun:"is_builtin"`
	Version            int            `bun:"version"`
	ConfigHash         string         `bun:"config_hash"`
	CreatedAt          time.Time      `bun:"created_at"`
}

func templateRowFrom(t domain.WorkflowTemplate) *templateRow {
	return &templateRow{
		ID:                 t.ID,
		Name:               t.Name,
		WorkflowType:       string(t.WorkflowType),
		DefaultParams:      t.DefaultParams,
		RequiredTools:      t.RequiredTools,
		RequiredRetrievers: t.RequiredRetrievers,
		IsBuiltin:          t.IsBuiltin,
		Version:            t.Version,
		ConfigHash:         t.ConfigHash,
		CreatedAt:          time.Now(),
	}
}

func (r *templateRow) toDomain() domain.WorkflowTemplate {
	return domain.WorkflowTemplate{
		ID:                 r.ID,
		Name:               r.Name,
		WorkflowType:       domain.WorkflowType(r.WorkflowType),
		DefaultParams:      r.DefaultParams,
		RequiredTools:      r.RequiredTools,
		RequiredRetrievers: r.RequiredRetrievers,
		IsBuiltin:          r.IsBuiltin,
		Version:            r.Version,
		ConfigHash:         r.ConfigHash,
	}
}

// SaveTemplate inserts or updates tmpl, assigning a ULID if it has no id yet.
func (s *Store) SaveTemplate(ctx context.Context, tmpl domain.WorkflowTemplate) (string, error) {
	if tmpl.ID == "" {
		tmpl.ID = newULID()
	}
	row := templateRowFrom(tmpl)
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("workflow_type = EXCLUDED.workflow_type").
		Set("default_params = EXCLUDED.default_params").
		Set("required_tools = EXCLUDED.required_tools").
		Set("required_retrievers = EXCLUDED.required_retrievers").
		Set("is_builtin = EXCLUDED.is_builtin").
		Set("version = EXCLUDED.version").
		Set("config_hash = EXCLUDED.config_hash").
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("save template %s: %w", tmpl.ID, err)
	}
	return tmpl.ID, nil
}

// GetTemplate implements engine.TemplateStore.
func (s *Store) GetTemplate(ctx context.Context, id string) (domain.WorkflowTemplate, error) {
	row := new(templateRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("get template %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// ListTemplates returns every stored template, builtin-first then by name.
func (s *Store) ListTemplates(ctx context.Context) ([]domain.WorkflowTemplate, error) {
	var rows []templateRow
	if err := s.db.NewSelect().Model(&rows).Order("is_builtin DESC", "name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]domain.WorkflowTemplate, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- definitions ---

// definitionRow persists an already-compiled graph (spec.md §4.7 variant b):
// the serialized node/edge spec plus the CapabilitySet it was compiled
// under, so re-execution never has to re-run the Template Compiler.
type definitionRow struct {
	bun.BaseModel `bun:"table:definitions,alias:d"`

	ID           string                   `bun:"id,pk"`
	Nodes        []domain.NodeSpec        `bun:"nodes,type:jsonb"`
	Edges        []domain.EdgeSpec        `bun:"edges,type:jsonb"`
	Metadata     map[string]any           `bun:"metadata,type:jsonb"`
	Capabilities capability.CapabilitySet `bun:"capabilities,type:jsonb"`
	CreatedAt    time.Time                `bun:"created_at"`
}

// SaveDefinition persists graph+caps under id, assigning a ULID if id is
// empty, and returns the id used.
func (s *Store) SaveDefinition(ctx context.Context, id string, graph *domain.WorkflowGraph, caps capability.CapabilitySet) (string, error) {
	if id == "" {
		id = newULID()
	}
	row := &definitionRow{
		ID:           id,
		Nodes:        graph.Nodes,
		Edges:        graph.Edges,
		Metadata:     graph.Metadata,
		Capabilities: caps,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("nodes = EXCLUDED.nodes").
		Set("edges = EXCLUDED.edges").
		Set("metadata = EXCLUDED.metadata").
		Set("capabilities = EXCLUDED.capabilities").
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("save definition %s: %w", id, err)
	}
	return id, nil
}

// GetDefinition implements engine.DefinitionStore.
func (s *Store) GetDefinition(ctx context.Context, id string) (*domain.WorkflowGraph, capability.CapabilitySet, error) {
	row := new(definitionRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, capability.CapabilitySet{}, fmt.Errorf("get definition %s: %w", id, err)
	}
	graph := domain.NewWorkflowGraph(row.Nodes, row.Edges, row.Metadata)
	return graph, row.Capabilities, nil
}

// DeleteDefinition removes a stored definition; absence is not an error.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().Model((*definitionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete definition %s: %w", id, err)
	}
	return nil
}

// DB exposes the underlying *bun.DB so callers (e.g. eventbus subscribers)
// can share the same connection pool instead of opening a second one.
func (s *Store) DB() *bun.DB { return s.db }
