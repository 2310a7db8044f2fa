package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agnvar/agnvar/internal/config"
	"github.com/agnvar/agnvar/internal/output"
)

// Open constructs the catalog described by cfg. The configuration object is
// the only input; nothing is read from the process environment.
func Open(ctx context.Context, cfg *config.CatalogConfig, logger *slog.Logger) (Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cols := ColumnMap(cfg.Columns)

	switch cfg.Type {
	case config.CatalogPostgres:
		pg := NewPostgresCatalog(cfg.PostgresURL(), cfg.Schema, cfg.Table, cols)
		if err := pg.Connect(ctx, int32(cfg.MaxConnections)); err != nil {
			return nil, err
		}
		logger.Info("catalog connected", "type", cfg.Type, "name", cfg.Name, "table", cfg.Schema+"."+cfg.Table)
		return pg, nil

	case config.CatalogMongo:
		m, err := NewMongoCatalog(ctx, cfg.ConnectionString, cfg.Database, cfg.Table, cols)
		if err != nil {
			return nil, err
		}
		logger.Info("catalog connected", "type", cfg.Type, "name", cfg.Name, "collection", cfg.Database+"."+cfg.Table)
		return m, nil

	case config.CatalogMemory:
		data, err := output.ReadCSV(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("loading catalog extract: %w", err)
		}
		logger.Info("catalog loaded", "type", cfg.Type, "name", cfg.Name, "path", cfg.Path, "rows", data.Len())
		return NewMemoryCatalog(data, cols), nil
	}
	return nil, fmt.Errorf("unsupported catalog type %q", cfg.Type)
}
