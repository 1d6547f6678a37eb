// Package export writes finished referral graphs to files for analysis
// outside the engine. Every format is write-only from the engine's point of
// view; nothing here feeds a later simulation.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// Kind names an export format.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindSQLite   Kind = "sqlite"
	KindArrow    Kind = "arrow"
)

// ParseKind validates an export format name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSnapshot, KindSQLite, KindArrow:
		return k, nil
	default:
		return "", fmt.Errorf("unknown export format %q (valid: snapshot, sqlite, arrow)", s)
	}
}

// Extension returns the conventional file extension for k.
func (k Kind) Extension() string {
	switch k {
	case KindSnapshot:
		return ".json.gz"
	case KindSQLite:
		return ".db"
	case KindArrow:
		return ".arrow"
	default:
		return ""
	}
}

// Info describes the run that produced a graph.
type Info struct {
	RunID     string
	CreatedAt time.Time
	Metrics   *simulation.Metrics
}

// Write exports g to path in the given format.
func Write(ctx context.Context, kind Kind, path string, g *graph.Graph, info Info) error {
	if g == nil {
		g = graph.Empty()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	switch kind {
	case KindSnapshot:
		return WriteSnapshot(path, g, info)
	case KindSQLite:
		return WriteSQLite(ctx, path, g, info)
	case KindArrow:
		return WriteArrow(path, g)
	default:
		return fmt.Errorf("unknown export format %q", kind)
	}
}
