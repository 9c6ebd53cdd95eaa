// Package redis provides a Redis-backed limits.Catalog. Plans are stored as
// JSON documents under a key prefix so a fleet of instances sees plan edits
// without a redeploy. Wrap it in limits.NewCachedCatalog in request paths.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// Catalog implements limits.Catalog using Redis
type Catalog struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis catalog configuration
type Config struct {
	// KeyPrefix is prepended to all plan keys (default: "libra:plans:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{KeyPrefix: "libra:plans:"}
}

// planDoc is the stored JSON shape for a plan
type planDoc struct {
	AINums      int `json:"aiNums"`
	EnhanceNums int `json:"enhanceNums"`
	UploadLimit int `json:"uploadLimit"`
	DeployLimit int `json:"deployLimit"`
	Seats       int `json:"seats"`
	ProjectNums int `json:"projectNums"`
}

// New creates a new Redis catalog adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Catalog, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "libra:plans:"
	}
	return &Catalog{client: client, config: config}, nil
}

// Limits implements limits.Catalog
func (c *Catalog) Limits(ctx context.Context, plan limits.PlanName) (limits.PlanLimits, error) {
	raw, err := c.client.Get(ctx, c.key(plan)).Bytes()
	if err == redis.Nil {
		return limits.PlanLimits{}, limits.ErrPlanNotFound
	}
	if err != nil {
		return limits.PlanLimits{}, fmt.Errorf("failed to get plan: %w", err)
	}

	var doc planDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return limits.PlanLimits{}, fmt.Errorf("failed to decode plan %q: %w", plan, err)
	}

	return limits.PlanLimits{
		AINums:      doc.AINums,
		EnhanceNums: doc.EnhanceNums,
		UploadLimit: doc.UploadLimit,
		DeployLimit: doc.DeployLimit,
		Seats:       doc.Seats,
		ProjectNums: doc.ProjectNums,
	}, nil
}

// SetPlan stores or replaces a plan document.
func (c *Catalog) SetPlan(ctx context.Context, plan limits.PlanName, l limits.PlanLimits) error {
	doc := planDoc{
		AINums:      l.AINums,
		EnhanceNums: l.EnhanceNums,
		UploadLimit: l.UploadLimit,
		DeployLimit: l.DeployLimit,
		Seats:       l.Seats,
		ProjectNums: l.ProjectNums,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode plan %q: %w", plan, err)
	}
	if err := c.client.Set(ctx, c.key(plan), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return nil
}

// Seed writes every plan in the map, replacing existing documents.
func (c *Catalog) Seed(ctx context.Context, plans map[limits.PlanName]limits.PlanLimits) error {
	for name, l := range plans {
		if err := c.SetPlan(ctx, name, l); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) key(plan limits.PlanName) string {
	return c.config.KeyPrefix + string(plan)
}
