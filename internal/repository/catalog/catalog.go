package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinver-app/dinver-media/internal/entities"
)

var ErrAssetNotFound = errors.New("asset not found")

// Store persists completed assets and their variant records. The queue's
// retention window is bounded, so this is the durable reference business
// entities point at.
type Store struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Store{dbpool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *Store) Close() {
	s.dbpool.Close()
}

// SaveAsset writes the asset and its variants in one transaction. Re-runs
// of the same completed job (at-least-once delivery) overwrite cleanly.
func (s *Store) SaveAsset(ctx context.Context, asset entities.MediaAsset, variants []entities.VariantRecord) error {
	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO media_assets (base_name, folder, source_format, original_width, original_height, source_size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (base_name) DO NOTHING`,
		asset.BaseName, asset.Folder, asset.SourceFormat,
		asset.OriginalWidth, asset.OriginalHeight, asset.SourceSizeBytes, asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset %s: %w", asset.BaseName, err)
	}

	for _, v := range variants {
		_, err = tx.Exec(ctx, `
			INSERT INTO media_variants (base_name, name, storage_key, width, height, byte_size, format)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (base_name, name) DO UPDATE
			SET storage_key = EXCLUDED.storage_key,
			    width = EXCLUDED.width,
			    height = EXCLUDED.height,
			    byte_size = EXCLUDED.byte_size,
			    format = EXCLUDED.format`,
			asset.BaseName, string(v.Name), v.StorageKey, v.Width, v.Height, v.ByteSize, v.Format,
		)
		if err != nil {
			return fmt.Errorf("insert variant %s/%s: %w", asset.BaseName, v.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// GetAsset loads one asset and all of its variant records.
func (s *Store) GetAsset(ctx context.Context, folder, baseName string) (entities.MediaAsset, []entities.VariantRecord, error) {
	var asset entities.MediaAsset
	err := s.dbpool.QueryRow(ctx, `
		SELECT base_name, folder, source_format, original_width, original_height, source_size_bytes, created_at
		FROM media_assets WHERE folder = $1 AND base_name = $2`,
		folder, baseName,
	).Scan(&asset.BaseName, &asset.Folder, &asset.SourceFormat,
		&asset.OriginalWidth, &asset.OriginalHeight, &asset.SourceSizeBytes, &asset.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.MediaAsset{}, nil, fmt.Errorf("%w: %s/%s", ErrAssetNotFound, folder, baseName)
		}
		return entities.MediaAsset{}, nil, fmt.Errorf("select asset: %w", err)
	}

	rows, err := s.dbpool.Query(ctx, `
		SELECT name, storage_key, width, height, byte_size, format
		FROM media_variants WHERE base_name = $1 ORDER BY name`,
		baseName,
	)
	if err != nil {
		return entities.MediaAsset{}, nil, fmt.Errorf("select variants: %w", err)
	}
	defer rows.Close()

	var variants []entities.VariantRecord
	for rows.Next() {
		var v entities.VariantRecord
		var name string
		if err := rows.Scan(&name, &v.StorageKey, &v.Width, &v.Height, &v.ByteSize, &v.Format); err != nil {
			return entities.MediaAsset{}, nil, fmt.Errorf("scan variant: %w", err)
		}
		v.Name = entities.VariantName(name)
		variants = append(variants, v)
	}
	return asset, variants, rows.Err()
}
