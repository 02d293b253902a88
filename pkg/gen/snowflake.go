package gen

import (
	"fmt"

	"miniapp-rewards/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the id generator for this instance. NODE_ID must be
// unique across instances sharing a store.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
