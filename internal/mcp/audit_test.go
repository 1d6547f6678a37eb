package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		if err := logger.Close(); err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	now := time.Now()
	logger.Log(AuditEntry{
		Timestamp:  now,
		Tool:       "viralsim_simulate",
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"personas": "3"},
	})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var entry AuditEntry
	if err := json.Unmarshal(data[:len(data)-1], &entry); err != nil {
		t.Fatalf("parsing audit entry: %v", err)
	}
	if entry.Tool != "viralsim_simulate" {
		t.Errorf("tool = %q, want viralsim_simulate", entry.Tool)
	}
	if entry.DurationMs != 42 {
		t.Errorf("duration_ms = %d, want 42", entry.DurationMs)
	}
	if entry.Params["personas"] != "3" {
		t.Errorf("params = %v", entry.Params)
	}

	info, err := os.Stat(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("stat audit log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("audit log permissions = %o, want 600", perm)
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	logger.Close()
	logger.Log(AuditEntry{Tool: "late"})

	data, err := os.ReadFile(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("log after close wrote %q", data)
	}
}

func TestAuditLogger_Concurrent(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Tool: "viralsim_social_proof", Status: "success"})
		}()
	}
	wg.Wait()
	logger.Close()

	lines := readAuditLines(t, dir)
	if len(lines) != 20 {
		t.Errorf("got %d entries, want 20", len(lines))
	}
}

func TestAuditTool_RecordsHandlerCalls(t *testing.T) {
	server, dir := setupTestServer(t)

	if _, _, err := server.handleSimulate(context.Background(), nil, testInput(2)); err != nil {
		t.Fatalf("handleSimulate failed: %v", err)
	}
	if _, _, err := server.handleSocialProof(context.Background(), nil, SocialProofInput{NetworkSize: -1}); err == nil {
		t.Fatal("expected social proof error")
	}
	server.Close()

	lines := readAuditLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("got %d entries, want 2", len(lines))
	}
	if lines[0].Tool != "viralsim_simulate" || lines[0].Status != "success" {
		t.Errorf("first entry = %+v", lines[0])
	}
	if lines[0].Params["personas"] != "2" {
		t.Errorf("params = %v", lines[0].Params)
	}
	if lines[1].Status != "error" || lines[1].Error == "" {
		t.Errorf("second entry = %+v", lines[1])
	}
}

func TestAuditTool_NoAuditDir(t *testing.T) {
	server, _ := setupTestServer(t)
	server.audit = nil
	server.auditTool("viralsim_config", time.Now(), errors.New("boom"), nil)
}

func readAuditLines(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parsing audit line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}
