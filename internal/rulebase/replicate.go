package rulebase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pacificclimate/impacts/internal/domain"
)

// ReloadEvent announces a loaded rulebase to the other replicas.
type ReloadEvent struct {
	Origin    string `json:"origin"`
	Checksum  string `json:"checksum"`
	RuleCount int    `json:"ruleCount"`
}

// Replicator keeps replicas on the same rulebase. A replica that reloads
// announces its checksum; the others reload their own copy of the file
// when their checksum differs.
type Replicator struct {
	store  *Store
	bus    domain.EventBus
	origin string
	onLoad func(*Rulebase)
	logger *slog.Logger
}

// NewReplicator creates a replicator for store. origin identifies this
// replica; onLoad, if set, runs after every reload triggered by a peer.
func NewReplicator(store *Store, bus domain.EventBus, origin string, onLoad func(*Rulebase)) *Replicator {
	return &Replicator{
		store:  store,
		bus:    bus,
		origin: origin,
		onLoad: onLoad,
		logger: store.logger.With("origin", origin),
	}
}

// Announce tells the other replicas about version.
func (r *Replicator) Announce(ctx context.Context, version *domain.RulebaseVersion) error {
	payload, err := json.Marshal(ReloadEvent{
		Origin:    r.origin,
		Checksum:  version.Checksum,
		RuleCount: version.RuleCount,
	})
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, domain.TopicRulebaseReloaded, payload)
}

// Start follows announcements until ctx ends or the subscription is
// dropped.
func (r *Replicator) Start(ctx context.Context) (domain.Subscription, error) {
	return r.bus.Subscribe(ctx, domain.TopicRulebaseReloaded, r.handle)
}

func (r *Replicator) handle(ctx context.Context, msg *domain.Message) error {
	var ev ReloadEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode reload event: %w", err)
	}
	if ev.Origin == r.origin {
		return nil
	}
	if v := r.store.Version(); v != nil && v.Checksum == ev.Checksum {
		return nil
	}

	version, err := r.store.Reload(ctx)
	if err != nil {
		r.logger.Error("reload requested by peer failed", "peer", ev.Origin, "error", err)
		return err
	}
	if version.Checksum != ev.Checksum {
		r.logger.Warn("rulebase differs from peer after reload",
			"peer", ev.Origin,
			"peer_checksum", ev.Checksum,
			"checksum", version.Checksum,
		)
	}

	if r.onLoad != nil {
		if rb, err := r.store.Current(); err == nil {
			r.onLoad(rb)
		}
	}
	return nil
}
