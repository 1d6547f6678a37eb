package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/viralsim/internal/graph"
)

// EdgeSchema is the Arrow schema of an exported edge file. One row per
// referral edge; generation is the referred user's generation.
var EdgeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "source", Type: arrow.BinaryTypes.String},
	{Name: "target", Type: arrow.BinaryTypes.String},
	{Name: "channel", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "generation", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// WriteArrow writes g's edges as a single-record Arrow IPC file.
func WriteArrow(path string, g *graph.Graph) error {
	mem := memory.NewGoAllocator()
	rec := edgeRecord(mem, g)
	defer rec.Release()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(EdgeSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return f.Close()
}

func edgeRecord(mem memory.Allocator, g *graph.Graph) arrow.Record {
	b := array.NewRecordBuilder(mem, EdgeSchema)
	defer b.Release()

	sources := b.Field(0).(*array.StringBuilder)
	targets := b.Field(1).(*array.StringBuilder)
	channels := b.Field(2).(*array.StringBuilder)
	stamps := b.Field(3).(*array.TimestampBuilder)
	gens := b.Field(4).(*array.Int32Builder)

	for _, e := range g.Edges() {
		sources.Append(e.From)
		targets.Append(e.To)
		if e.Channel == "" {
			channels.AppendNull()
		} else {
			channels.Append(e.Channel)
		}
		stamps.Append(arrow.Timestamp(e.Timestamp.UnixMicro()))
		gens.Append(int32(g.Generation(e.To)))
	}
	return b.NewRecord()
}
