package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// DefaultTopic is the gossip topic transactions are published on.
const DefaultTopic = "txrelay/tx/v1"

// Config configures the gossip peer manager.
type Config struct {
	// Listen are multiaddrs the host listens on, e.g. "/ip4/0.0.0.0/tcp/4001".
	Listen []string

	// Bootstrap are peer multiaddrs including /p2p/<id>, dialled best-effort.
	Bootstrap []string

	// Topic defaults to DefaultTopic.
	Topic string

	// MinPeers is the number of topic peers required before publishing.
	// Zero publishes even when alone.
	MinPeers int

	// PublishTimeout bounds a single Broadcast, including the wait for
	// MinPeers. Zero means no timeout beyond the caller's context.
	PublishTimeout time.Duration

	// MaxMessageSize defaults to pubsub.DefaultMaxMessageSize.
	MaxMessageSize int
}

func (c *Config) withDefaults() {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = pubsub.DefaultMaxMessageSize
	}
}

// Handler receives transactions gossiped by other peers.
type Handler func(from peer.ID, payload []byte)

// Gossip publishes transactions to peers over libp2p gossipsub.
type Gossip struct {
	cfg     Config
	host    host.Host
	ownHost bool
	ps      *pubsub.PubSub
	topic   *pubsub.Topic
	sub     *pubsub.Subscription

	closeOnce sync.Once
	done      chan struct{}
}

var _ Broadcaster = (*Gossip)(nil)

// NewGossip starts a libp2p host on cfg.Listen, joins the gossip topic and
// dials the bootstrap peers.
func NewGossip(ctx context.Context, cfg Config, handler Handler) (*Gossip, error) {
	var opts []libp2p.Option
	addrs, err := parseAddrs(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen address: %w", err)
	}
	if len(addrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(addrs...))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}

	g, err := newGossip(ctx, h, cfg, handler)
	if err != nil {
		h.Close()
		return nil, err
	}
	g.ownHost = true

	g.connectBootstrap(ctx)
	for _, a := range h.Addrs() {
		slog.Info("p2p listening", "peer_id", h.ID().String(), "addr", a.String())
	}
	return g, nil
}

// NewGossipFromHost joins the gossip topic on an existing host.
// The host is not closed by Close.
func NewGossipFromHost(ctx context.Context, h host.Host, cfg Config, handler Handler) (*Gossip, error) {
	g, err := newGossip(ctx, h, cfg, handler)
	if err != nil {
		return nil, err
	}
	g.connectBootstrap(ctx)
	return g, nil
}

func newGossip(ctx context.Context, h host.Host, cfg Config, handler Handler) (*Gossip, error) {
	cfg.withDefaults()

	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithMaxMessageSize(cfg.MaxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("start gossipsub: %w", err)
	}

	if err := ps.RegisterTopicValidator(cfg.Topic, validatePayload); err != nil {
		return nil, fmt.Errorf("register validator: %w", err)
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("join topic %q: %w", cfg.Topic, err)
	}

	// PubSub requires at least one subscription to take part in the mesh.
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return nil, fmt.Errorf("subscribe topic %q: %w", cfg.Topic, err)
	}

	g := &Gossip{
		cfg:   cfg,
		host:  h,
		ps:    ps,
		topic: topic,
		sub:   sub,
		done:  make(chan struct{}),
	}
	go g.receive(handler)
	return g, nil
}

// Broadcast publishes payload on the gossip topic.
//
// Oversized payloads and payloads rejected by topic validation are
// Permanent; everything else, including a timeout waiting for MinPeers,
// is Transient.
func (g *Gossip) Broadcast(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return Permanent(errors.New("empty payload"))
	}
	if len(payload) > g.cfg.MaxMessageSize {
		return Permanent(fmt.Errorf("payload of %d bytes exceeds max message size %d", len(payload), g.cfg.MaxMessageSize))
	}

	if g.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.PublishTimeout)
		defer cancel()
	}

	var opts []pubsub.PubOpt
	if g.cfg.MinPeers > 0 {
		// so that we publish only when enough peers will hear it
		opts = append(opts, pubsub.WithReadiness(pubsub.MinTopicSize(g.cfg.MinPeers)))
	}

	err := g.topic.Publish(ctx, payload, opts...)
	if err == nil {
		return nil
	}

	var verr pubsub.ValidationError
	if errors.As(err, &verr) {
		return Permanent(err)
	}
	return Transient(err)
}

// ID returns the local peer id.
func (g *Gossip) ID() peer.ID {
	return g.host.ID()
}

// Peers returns the peers currently subscribed to the topic.
func (g *Gossip) Peers() []peer.ID {
	return g.topic.ListPeers()
}

// Close leaves the topic and, if Gossip started the host, stops it.
func (g *Gossip) Close() (err error) {
	g.closeOnce.Do(func() {
		g.sub.Cancel()
		<-g.done
		err = errors.Join(err, g.ps.UnregisterTopicValidator(g.cfg.Topic))
		err = errors.Join(err, g.topic.Close())
		if g.ownHost {
			err = errors.Join(err, g.host.Close())
		}
	})
	return err
}

// receive drains the subscription, handing payloads from other peers to handler.
func (g *Gossip) receive(handler Handler) {
	defer close(g.done)
	self := g.host.ID()
	for {
		msg, err := g.sub.Next(context.Background())
		if err != nil {
			// happens when subscription is canceled
			return
		}
		if msg.ReceivedFrom == self || handler == nil {
			continue
		}
		handler(msg.ReceivedFrom, msg.Data)
	}
}

func (g *Gossip) connectBootstrap(ctx context.Context) {
	for _, s := range g.cfg.Bootstrap {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if err := connectOnce(ctx, g.host, s); err != nil {
			slog.Warn("bootstrap peer unreachable", "addr", s, "error", err)
			continue
		}
		slog.Info("connected bootstrap peer", "addr", s)
	}
}

func connectOnce(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return h.Connect(ctx, *info)
}

func parseAddrs(raw []string) ([]ma.Multiaddr, error) {
	var addrs []ma.Multiaddr
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// validatePayload rejects empty messages, locally and from peers.
func validatePayload(_ context.Context, _ peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	if len(msg.Data) == 0 {
		return pubsub.ValidationReject
	}
	return pubsub.ValidationAccept
}
