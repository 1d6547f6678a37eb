package mcp

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/viralsim/internal/network"
)

func TestNewServer(t *testing.T) {
	server, _ := setupTestServer(t)
	if server.server == nil {
		t.Fatal("SDK server not initialized")
	}
	if server.audit == nil {
		t.Error("audit logger not opened")
	}
	for _, tool := range []string{"viralsim_simulate", "viralsim_project_growth", "viralsim_social_proof", "viralsim_config"} {
		if _, ok := server.toolLimiters[tool]; !ok {
			t.Errorf("no limiter for %s", tool)
		}
	}
}

func TestNewServer_RequiresService(t *testing.T) {
	if _, err := NewServer(&Config{Name: "test"}, nil); err == nil {
		t.Error("expected error without a service")
	}
}

func TestNewServer_WithoutAudit(t *testing.T) {
	server, _ := setupTestServer(t)
	srv, err := NewServer(&Config{Name: "test", Version: "v0"}, server.svc)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if srv.audit != nil {
		t.Error("audit logger opened without AuditDir")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHandleConfigResource(t *testing.T) {
	server, _ := setupTestServer(t)

	result, err := server.handleConfigResource(context.Background(), &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleConfigResource failed: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("len(Contents) = %d, want 1", len(result.Contents))
	}
	c := result.Contents[0]
	if c.URI != ConfigResourceURI || c.MIMEType != "application/json" {
		t.Errorf("content = %s %s", c.URI, c.MIMEType)
	}

	var cfg network.Config
	if err := json.Unmarshal([]byte(c.Text), &cfg); err != nil {
		t.Fatalf("decoding config: %v", err)
	}
	if cfg.BaseReferralProbability != network.DefaultConfig().BaseReferralProbability {
		t.Errorf("BaseReferralProbability = %v", cfg.BaseReferralProbability)
	}
}
