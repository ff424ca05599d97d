// Package database はsessionsテーブルを置くPostgreSQLへの接続と、
// バイナリに埋め込んだスキーマの適用を扱う。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion は適用前後のスキーマバージョン。未適用のデータベースは0。
type SchemaVersion struct {
	Before uint
	After  uint
}

// Changed は新しいマイグレーションが適用されたかを返す。
func (v SchemaVersion) Changed() bool {
	return v.Before != v.After
}

// NewMigrator は埋め込みスキーマを読み込んだmigrateインスタンスを返す。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded schema: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はスキーマを最新まで適用し、前後のバージョンを返す。
// 途中で失敗してdirtyになったデータベースには適用しない。
func RunMigrations(databaseURL string) (SchemaVersion, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return SchemaVersion{}, err
	}
	defer m.Close()

	before, err := schemaVersion(m)
	if err != nil {
		return SchemaVersion{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaVersion{Before: before}, fmt.Errorf("failed to apply schema: %w", err)
	}

	after, err := schemaVersion(m)
	if err != nil {
		return SchemaVersion{Before: before}, err
	}
	return SchemaVersion{Before: before, After: after}, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty; fix it with migrate force", v)
	}
	return v, nil
}
