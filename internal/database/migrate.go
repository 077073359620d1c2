// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationOp はmigrateサブコマンドの操作種別。
type MigrationOp string

const (
	// MigrationUp は未適用のマイグレーションをすべて適用する。
	MigrationUp MigrationOp = "up"
	// MigrationDown は指定ステップ数だけロールバックする。
	MigrationDown MigrationOp = "down"
	// MigrationVersion は現在のスキーマバージョンを報告する。
	MigrationVersion MigrationOp = "version"
)

// MigrationPlan は実行するマイグレーション操作。
type MigrationPlan struct {
	Op    MigrationOp
	Steps int // downのときのみ使用
}

// MigrationState はマイグレーション実行後のスキーマ状態。
type MigrationState struct {
	Version uint
	Dirty   bool
	Empty   bool // マイグレーションが1つも適用されていない
}

// ParseMigrationPlan は `migrate [up|down [N]|version]` の引数を解析する。
// 引数なしはupとして扱う。downのステップ数は省略時1。
func ParseMigrationPlan(args []string) (MigrationPlan, error) {
	if len(args) == 0 {
		return MigrationPlan{Op: MigrationUp}, nil
	}

	op := MigrationOp(args[0])
	switch op {
	case MigrationUp, MigrationVersion:
		if len(args) > 1 {
			return MigrationPlan{}, fmt.Errorf("migrate %s takes no arguments", op)
		}
		return MigrationPlan{Op: op}, nil
	case MigrationDown:
		plan := MigrationPlan{Op: op, Steps: 1}
		if len(args) > 2 {
			return MigrationPlan{}, errors.New("migrate down takes at most one argument")
		}
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrationPlan{}, fmt.Errorf("invalid step count %q: must be a positive integer", args[1])
			}
			plan.Steps = n
		}
		return plan, nil
	default:
		return MigrationPlan{}, fmt.Errorf("unknown migrate operation %q", args[0])
	}
}

// NewMigrator は埋め込みSQLをソースとするmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	_, err := ApplyMigrationPlan(databaseURL, MigrationPlan{Op: MigrationUp})
	return err
}

// ApplyMigrationPlan はplanを実行し、実行後のスキーマ状態を返す。
func ApplyMigrationPlan(databaseURL string, plan MigrationPlan) (MigrationState, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationState{}, err
	}
	defer m.Close()

	switch plan.Op {
	case MigrationUp:
		err = m.Up()
	case MigrationDown:
		err = m.Steps(-plan.Steps)
	case MigrationVersion:
	default:
		return MigrationState{}, fmt.Errorf("unknown migrate operation %q", plan.Op)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationState{}, fmt.Errorf("failed to run migrations (%s): %w", plan.Op, err)
	}

	return currentState(m)
}

func currentState(m *migrate.Migrate) (MigrationState, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationState{Empty: true}, nil
	}
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return MigrationState{Version: v, Dirty: dirty}, nil
}
