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

// Package kennel assembles the token unlock plan ledger: persistent
// storage, the token custody ledger, the plan ledger and the event
// journal, wired together behind a single Node.
package kennel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/database"
	"github.com/blinklabs-io/kennel/event"
	"github.com/blinklabs-io/kennel/ledger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	journal       *database.Journal
	tokens        *asset.Ledger
	ledger        *ledger.Ledger
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	return n, nil
}

// Run opens storage, restores ledger state and starts the event
// journal. It returns once the node is serving; use Stop to shut down.
func (n *Node) Run() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Open record store
	db, err := database.New(database.Config{
		DataDir:      n.config.dataDir,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Open event journal
	journal, err := database.NewJournal(n.config.dataDir, n.config.logger)
	if err != nil {
		return fmt.Errorf("failed to open event journal: %w", err)
	}
	n.journal = journal
	// Restore token balances
	n.tokens = asset.NewLedger(asset.LedgerConfig{
		Logger: n.config.logger,
	})
	balances, err := n.db.Balances()
	if err != nil {
		return fmt.Errorf("failed to load balances: %w", err)
	}
	n.tokens.LoadBalances(balances)
	// Restore plan ledger state
	n.ledger = ledger.NewLedger(ledger.LedgerConfig{
		Logger:         n.config.logger,
		EventBus:       n.eventBus,
		PromRegistry:   n.config.promRegistry,
		Token:          n.tokens,
		Store:          n.db,
		Clock:          n.config.clock,
		CustodyAccount: n.config.custodyAccount,
	})
	plans, err := n.db.Plans()
	if err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	vaults, err := n.db.Vaults()
	if err != nil {
		return fmt.Errorf("failed to load vaults: %w", err)
	}
	prefs, err := n.db.DelegatePreferences()
	if err != nil {
		return fmt.Errorf("failed to load delegate preferences: %w", err)
	}
	n.ledger.Load(plans, vaults, prefs)
	// Journal every ledger event
	for _, eventType := range ledger.EventTypes() {
		n.eventBus.SubscribeFunc(eventType, func(evt event.Event) {
			if err := n.journal.Append(evt); err != nil {
				n.config.logger.Error(
					"failed to journal event",
					"component", "node",
					"event_type", evt.Type,
					"error", err,
				)
			}
		})
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"plans", len(plans),
		"vaults", len(vaults),
	)
	return nil
}

// Ledger returns the plan ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Tokens returns the token custody ledger.
func (n *Node) Tokens() *asset.Ledger {
	return n.tokens
}

// Journal returns the event journal.
func (n *Node) Journal() *database.Journal {
	return n.journal
}

// Stop shuts the node down gracefully. It's safe to call multiple
// times.
func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: stop producing new events
	n.config.logger.Debug("shutdown phase 1: stopping event delivery")
	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Phase 2: flush state
	n.config.logger.Debug("shutdown phase 2: flushing state")
	if n.tokens != nil && n.db != nil {
		if flushErr := n.db.SaveBalances(n.tokens.Balances()); flushErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("balance flush: %w", flushErr),
			)
		}
	}

	// Phase 3: close storage
	n.config.logger.Debug("shutdown phase 3: closing storage")
	if n.journal != nil {
		if closeErr := n.journal.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("journal close: %w", closeErr))
		}
	}
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: cleanup resources
	n.config.logger.Debug("shutdown phase 4: cleanup resources")
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}

func (n *Node) setupTracing() error {
	var opts []stdouttrace.Option
	if !n.config.tracingStdout {
		opts = append(opts, stdouttrace.WithWriter(noopWriter{}))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tracerProvider)
	n.shutdownFuncs = append(n.shutdownFuncs, tracerProvider.Shutdown)
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) {
	return len(p), nil
}
