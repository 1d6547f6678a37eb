package export

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// SnapshotVersion is the current snapshot file version.
const SnapshotVersion = 1

// MaxSnapshotSize is the maximum allowed size of a decompressed snapshot (200MB).
const MaxSnapshotSize = 200 * 1024 * 1024

// SnapshotHeader is the plain-text first line of a snapshot file.
type SnapshotHeader struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id,omitempty"`
	Checksum  string    `json:"checksum"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
}

// Snapshot is the decompressed payload of a snapshot file.
type Snapshot struct {
	CreatedAt time.Time           `json:"created_at"`
	RunID     string              `json:"run_id,omitempty"`
	Metrics   *simulation.Metrics `json:"metrics,omitempty"`
	Nodes     []graph.Node        `json:"nodes"`
	Edges     []graph.Edge        `json:"edges"`
}

// WriteSnapshot writes g as a header line followed by a gzip-compressed
// JSON payload. The header carries a sha256 of the compressed bytes.
func WriteSnapshot(path string, g *graph.Graph, info Info) error {
	snap := Snapshot{
		CreatedAt: info.CreatedAt,
		RunID:     info.RunID,
		Metrics:   info.Metrics,
		Nodes:     g.Nodes(),
		Edges:     g.Edges(),
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := SnapshotHeader{
		Version:   SnapshotVersion,
		CreatedAt: info.CreatedAt,
		RunID:     info.RunID,
		Checksum:  checksum(compressed.Bytes()),
		NodeCount: len(snap.Nodes),
		EdgeCount: len(snap.Edges),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("writing compressed payload: %w", err)
	}
	return f.Close()
}

// ReadSnapshotHeader reads only the header line of a snapshot file.
func ReadSnapshotHeader(path string) (*SnapshotHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header, _, err := readHeader(bufio.NewReader(f))
	return header, err
}

// ReadSnapshot reads a snapshot file, verifies its checksum and decodes
// the payload.
func ReadSnapshot(path string) (*SnapshotHeader, *Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header, reader, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return nil, nil, err
	}

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxSnapshotSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxSnapshotSize {
		return nil, nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxSnapshotSize)
	}

	var snap Snapshot
	if err := json.Unmarshal(decompressed, &snap); err != nil {
		return nil, nil, fmt.Errorf("parsing snapshot data: %w", err)
	}
	return header, &snap, nil
}

func readHeader(r *bufio.Reader) (*SnapshotHeader, *bufio.Reader, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header SnapshotHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != SnapshotVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}
	return &header, r, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
