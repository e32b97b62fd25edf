// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package database provides persistent storage for plan records, vault
// mappings, delegate preferences and token balances in SQLite, plus an
// append-only event journal in Badger.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/ledger"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Database is the SQLite-backed record store. It implements
// ledger.Store for write-through persistence and provides bulk load
// methods for startup.
type Database struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	dataDir      string
}

type Config struct {
	DataDir      string
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// New creates a record store. Uses an in-memory database if DataDir is
// empty.
func New(config Config) (*Database, error) {
	var recordDb *gorm.DB
	var err error
	if config.DataDir == "" {
		// Use in-memory database when no data directory is specified, useful for testing
		// cache=shared allows multiple connections to share the same in-memory database
		recordDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(config.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(config.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		recordDbPath := filepath.Join(
			config.DataDir,
			"records.sqlite",
		)
		// WAL journal mode, disable sync on write, increase cache size to 50MB (from 2MB)
		recordConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)"
		recordDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", recordDbPath, recordConnOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	db := &Database{
		db:           recordDb,
		dataDir:      config.DataDir,
		logger:       config.Logger,
		promRegistry: config.PromRegistry,
	}
	if err := db.init(); err != nil {
		return db, err
	}
	// Create table schemas
	for _, model := range MigrateModels {
		db.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := db.db.AutoMigrate(model); err != nil {
			return db, err
		}
	}
	return db, nil
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	sqlDb, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

// SavePlan upserts a plan record.
func (d *Database) SavePlan(plan *ledger.Plan) error {
	result := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(planModel(plan))
	return result.Error
}

// DeletePlan removes a plan record.
func (d *Database) DeletePlan(id ledger.PlanId) error {
	result := d.db.Where("id = ?", uint64(id)).Delete(&Plan{})
	return result.Error
}

// SaveVault upserts a vault record.
func (d *Database) SaveVault(vault *ledger.Vault) error {
	result := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}},
		UpdateAll: true,
	}).Create(&Vault{
		PlanID:   uint64(vault.PlanId),
		Account:  string(vault.Account),
		Delegate: string(vault.Delegate),
	})
	return result.Error
}

// DeleteVault removes a vault record.
func (d *Database) DeleteVault(id ledger.PlanId) error {
	result := d.db.Where("plan_id = ?", uint64(id)).Delete(&Vault{})
	return result.Error
}

// SaveDelegatePreference upserts a holder's standing delegate for an
// asset.
func (d *Database) SaveDelegatePreference(
	holder, assetAddr, delegate asset.Address,
) error {
	result := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "holder"},
			{Name: "asset"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"delegate"}),
	}).Create(&DelegatePreference{
		Holder:   string(holder),
		Asset:    string(assetAddr),
		Delegate: string(delegate),
	})
	return result.Error
}

// SaveBalances replaces all persisted token balances with the given
// snapshot.
func (d *Database) SaveBalances(
	balances map[asset.Address]map[asset.Address]*big.Int,
) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Balance{}).Error; err != nil {
			return err
		}
		for assetAddr, byHolder := range balances {
			for holder, amount := range byHolder {
				if amount.Sign() == 0 {
					continue
				}
				row := &Balance{
					Asset:  string(assetAddr),
					Holder: string(holder),
					Amount: BigInt{new(big.Int).Set(amount)},
				}
				if err := tx.Create(row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Plans loads every persisted plan.
func (d *Database) Plans() ([]ledger.Plan, error) {
	var rows []Plan
	if result := d.db.Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]ledger.Plan, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].toLedger())
	}
	return ret, nil
}

// Vaults loads every persisted vault mapping.
func (d *Database) Vaults() ([]ledger.Vault, error) {
	var rows []Vault
	if result := d.db.Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]ledger.Vault, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].toLedger())
	}
	return ret, nil
}

// DelegatePreferences loads all standing delegates, keyed by holder and
// asset.
func (d *Database) DelegatePreferences() (
	map[asset.Address]map[asset.Address]asset.Address,
	error,
) {
	var rows []DelegatePreference
	if result := d.db.Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make(map[asset.Address]map[asset.Address]asset.Address)
	for i := range rows {
		holder := asset.Address(rows[i].Holder)
		if _, ok := ret[holder]; !ok {
			ret[holder] = make(map[asset.Address]asset.Address)
		}
		ret[holder][asset.Address(rows[i].Asset)] = asset.Address(
			rows[i].Delegate,
		)
	}
	return ret, nil
}

// Balances loads the persisted token balance snapshot.
func (d *Database) Balances() (
	map[asset.Address]map[asset.Address]*big.Int,
	error,
) {
	var rows []Balance
	if result := d.db.Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make(map[asset.Address]map[asset.Address]*big.Int)
	for i := range rows {
		assetAddr := asset.Address(rows[i].Asset)
		if _, ok := ret[assetAddr]; !ok {
			ret[assetAddr] = make(map[asset.Address]*big.Int)
		}
		ret[assetAddr][asset.Address(rows[i].Holder)] = new(
			big.Int,
		).Set(rows[i].Amount.Int)
	}
	return ret, nil
}
