// Package node wires the store, peer manager, dispatch pipeline and ingress
// server into one process and supervises them.
//
// The ingress server and the pipeline run side by side. The first one to
// stop abnormally cancels the other and its error is returned. A cancelled
// parent context is a normal shutdown.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/txrelay/internal/config"
	"github.com/roach88/txrelay/internal/ingress"
	txpeer "github.com/roach88/txrelay/internal/peer"
	"github.com/roach88/txrelay/internal/pipeline"
	"github.com/roach88/txrelay/internal/store"
)

// Deps replaces components Run would otherwise build from config.
// Components supplied here are not closed by Run.
type Deps struct {
	// Store defaults to store.Open(cfg.Storage.DBPath).
	Store *store.Store

	// Broadcaster defaults to a libp2p gossip peer manager.
	Broadcaster txpeer.Broadcaster

	// Validator defaults to pipeline.NonEmpty.
	Validator pipeline.Validator

	// Listener defaults to listening on cfg.Ingress.Listen.
	Listener net.Listener

	// IDs defaults to ingress.UUIDv7Generator.
	IDs ingress.IDGenerator
}

// Run starts the node and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, cfg config.Config, deps Deps) (err error) {
	st := deps.Store
	if st == nil {
		slog.Info("opening database", "path", cfg.Storage.DBPath)
		st, err = store.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				slog.Error("error closing database", "error", cerr)
			}
		}()
	}

	b := deps.Broadcaster
	if b == nil {
		gossip, gerr := txpeer.NewGossip(ctx, PeerConfig(cfg.Peer), logReceived)
		if gerr != nil {
			return fmt.Errorf("start peer manager: %w", gerr)
		}
		defer func() {
			if cerr := gossip.Close(); cerr != nil {
				slog.Error("error closing peer manager", "error", cerr)
			}
		}()
		b = gossip
	}

	var popts []pipeline.Option
	if deps.Validator != nil {
		popts = append(popts, pipeline.WithValidator(deps.Validator))
	}
	p := pipeline.New(st, b, PipelineConfig(cfg.Pipeline), popts...)

	var iopts []ingress.Option
	if deps.IDs != nil {
		iopts = append(iopts, ingress.WithIDGenerator(deps.IDs))
	}
	srv := ingress.New(st, p, IngressConfig(cfg.Ingress), iopts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("pipeline: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if deps.Listener != nil {
			return srv.Serve(gctx, deps.Listener)
		}
		return srv.Run(gctx)
	})

	slog.Info("node started")
	err = g.Wait()
	if err != nil {
		slog.Error("node stopped", "error", err)
		return err
	}
	slog.Info("node stopped")
	return nil
}

func logReceived(from peer.ID, payload []byte) {
	slog.Debug("transaction gossiped by peer", "from", from.String(), "bytes", len(payload))
}

// PipelineConfig maps configuration onto pipeline.Config.
func PipelineConfig(c config.Pipeline) pipeline.Config {
	return pipeline.Config{
		PollInterval: c.PollInterval,
		RetryBudget:  c.RetryBudget,
		Workers:      c.Workers,
		ClaimLease:   c.ClaimLease,
		AttemptTTL:   c.AttemptTTL,
	}
}

// PeerConfig maps configuration onto peer.Config.
func PeerConfig(c config.Peer) txpeer.Config {
	return txpeer.Config{
		Listen:         c.Listen,
		Bootstrap:      c.Bootstrap,
		Topic:          c.Topic,
		MinPeers:       c.MinPeers,
		PublishTimeout: c.PublishTimeout,
		MaxMessageSize: c.MaxMessageSize,
	}
}

// IngressConfig maps configuration onto ingress.Config.
func IngressConfig(c config.Ingress) ingress.Config {
	return ingress.Config{
		Listen:       c.Listen,
		RateLimit:    c.RateLimit,
		Burst:        c.Burst,
		MaxBatch:     c.MaxBatch,
		MaxBodyBytes: c.MaxBodyBytes,
	}
}
