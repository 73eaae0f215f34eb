package marks

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDSource issues correlation ids
type IDSource interface {
	Next() string
}

// SnowflakeIDs issues time-ordered snowflake ids rendered in base36.
// Ids from one node never repeat within a process lifetime.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs creates an id source for the given snowflake node number (0-1023)
func NewSnowflakeIDs(nodeID int64) (*SnowflakeIDs, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &SnowflakeIDs{node: node}, nil
}

func (s *SnowflakeIDs) Next() string {
	return s.node.Generate().Base36()
}

// SequenceIDs is a deterministic source for tests and offline replays
type SequenceIDs struct {
	Prefix string
	n      int
}

func (s *SequenceIDs) Next() string {
	s.n++
	return fmt.Sprintf("%s%d", s.Prefix, s.n)
}
