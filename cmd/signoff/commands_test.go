package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/filename"
	"github.com/zulandar/signoff/internal/identity"
	"github.com/zulandar/signoff/internal/models"
	"github.com/zulandar/signoff/internal/telegraph"
)

// --- parse ---

func TestParseCmd(t *testing.T) {
	out, err := runCmd(t, "parse", "Design Spec (01-TEST - 1028340 - 1 - A1).docx", "notes.txt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, want := range []string{"Title:      Design Spec", "Number:     1028340", "Revision:   A1", "Structured: no"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseCmd_JSON(t *testing.T) {
	out, err := runCmd(t, "parse", "--json", "Copy of Plan (01-X - 77 - 2 - B).pdf")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var p filename.Parsed
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &p); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !p.IsCopyMarker || p.DocNumber != "77" {
		t.Errorf("parsed = %+v", p)
	}
}

func TestParseCmd_RequiresArgs(t *testing.T) {
	if _, err := runCmd(t, "parse"); err == nil {
		t.Error("expected error without filenames")
	}
}

// --- migrate ---

func TestMigrateCmd(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out, err := runCmd(t, "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("migrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "skipped") || !strings.Contains(out, "Migration complete.") {
		t.Errorf("output = %s", out)
	}
	cfg, _ := config.Load(cfgPath)
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestMigrateCmd_MissingConfig(t *testing.T) {
	_, err := runCmd(t, "migrate", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v", err)
	}
}

// --- inject and docs ---

func TestInjectThenDecide(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCmd(t, "inject", "-c", cfgPath, "--title", "Spec", "--path", "docs/spec.txt", "--to-email", "ana@example.com")
	if err != nil {
		t.Fatalf("inject: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Injected DOC-001 · Spec") || !strings.Contains(out, "queued") {
		t.Errorf("inject output = %s", out)
	}

	out, err = runCmd(t, "docs", "list", "-c", cfgPath, "--state", "pending")
	if err != nil {
		t.Fatalf("docs list: %v", err)
	}
	if !strings.Contains(out, "DOC-001") || !strings.Contains(out, models.StatePendingApproval) {
		t.Errorf("list output = %s", out)
	}

	out, err = runCmd(t, "docs", "approve", "-c", cfgPath, "doc-001")
	if err != nil {
		t.Fatalf("docs approve: %v", err)
	}
	if !strings.Contains(out, "DOC-001 · Spec is now approved.") {
		t.Errorf("approve output = %s", out)
	}

	out, _ = runCmd(t, "docs", "list", "-c", cfgPath, "--state", "pending")
	if !strings.Contains(out, "No documents.") {
		t.Errorf("pending list after approve = %s", out)
	}
}

func TestInject_FilenameOnly(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out, err := runCmd(t, "inject", "-c", cfgPath, "--path", "up.docx",
		"--filename", "Design Spec (01-TEST - 1028340 - 1 - A1).docx")
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if !strings.Contains(out, "DOC-001 · Design Spec") {
		t.Errorf("output = %s", out)
	}
}

func TestInject_Validation(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if _, err := runCmd(t, "inject", "-c", cfgPath, "--title", "Spec"); err == nil {
		t.Error("expected error without --path")
	}
	_, err := runCmd(t, "inject", "-c", cfgPath, "--path", "a.txt")
	if err == nil || !strings.Contains(err.Error(), "title is required") {
		t.Errorf("err = %v", err)
	}
}

func TestDocsDecide_Unknown(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCmd(t, "docs", "reject", "-c", cfgPath, "DOC-404")
	if err == nil || !strings.Contains(err.Error(), "unknown document") {
		t.Errorf("err = %v", err)
	}
}

func TestDocsDecide_SaveFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	cfg := "data_dir: " + dataDir + "\ndatabase:\n  path: " + filepath.Join(dir, "db", "signoff.db") + `
gateway:
  platform: none
llm:
  provider: none
log:
  level: error
`
	cfgPath := filepath.Join(dir, "signoff.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if out, err := runCmd(t, "inject", "-c", cfgPath, "--title", "Spec", "--path", "docs/spec.txt"); err != nil {
		t.Fatalf("inject: %v\n%s", err, out)
	}

	if err := os.Chmod(dataDir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dataDir, 0o755) })

	_, err := runCmd(t, "docs", "approve", "-c", cfgPath, "DOC-001")
	if err == nil || !strings.Contains(err.Error(), "could not save") {
		t.Fatalf("err = %v, want a save failure", err)
	}
	if strings.Contains(err.Error(), "unknown document") {
		t.Errorf("err = %v, should not report an unknown document", err)
	}
}

func TestDocsList_UnknownState(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCmd(t, "docs", "list", "-c", cfgPath, "--state", "archived")
	if err == nil || !strings.Contains(err.Error(), "unknown state") {
		t.Errorf("err = %v", err)
	}
}

func TestWriteDocTable_ClipsTitle(t *testing.T) {
	var b strings.Builder
	docs := []models.Document{
		{ID: "DOC-001", State: models.StateApproved, Title: strings.Repeat("x", 80)},
		{ID: "DOC-002", State: models.StatePendingApproval, Title: "Plan", DocNumber: "77", DocClass: "01-X"},
	}
	writeDocTable(&b, docs, 50)

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d:\n%s", len(lines), b.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "…") {
		t.Errorf("long title not clipped: %q", lines[1])
	}
	if !strings.Contains(lines[2], "Plan (01-X - 77)") {
		t.Errorf("identifier missing: %q", lines[2])
	}
}

func TestClipRunes(t *testing.T) {
	if got := clipRunes("héllo", 10); got != "héllo" {
		t.Errorf("short = %q", got)
	}
	if got := clipRunes("héllo wörld", 6); got != "héllo…" {
		t.Errorf("clipped = %q", got)
	}
}

// --- serve wiring ---

func TestCreateGateway(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Platform: "none"}}
	gw, err := createGateway(cfg, nil)
	if err != nil {
		t.Fatalf("createGateway: %v", err)
	}
	if _, ok := gw.(*telegraph.OfflineGateway); !ok {
		t.Errorf("gateway = %T, want *telegraph.OfflineGateway", gw)
	}

	cfg.Gateway.Platform = "irc"
	if _, err := createGateway(cfg, nil); err == nil {
		t.Error("expected error for unsupported platform")
	}
}

func TestBuildResolver(t *testing.T) {
	cfg := &config.Config{}
	r, err := buildResolver(cfg, telegraph.NewOfflineGateway())
	if err != nil || r != nil {
		t.Errorf("no sources: r = %v, err = %v", r, err)
	}

	cfg.Gateway = config.GatewayConfig{
		Platform: "slack",
		Slack:    config.SlackConfig{AppToken: "xapp-1", BotToken: "xoxb-1"},
	}
	cfg.Directory = config.DirectoryConfig{
		TokenURL:     "https://login.example.com/token",
		ClientID:     "id",
		ClientSecret: "secret",
		UserURL:      "https://graph.example.com/users/{id}",
	}
	gw, err := createGateway(cfg, nil)
	if err != nil {
		t.Fatalf("createGateway: %v", err)
	}
	r, err = buildResolver(cfg, gw)
	if err != nil {
		t.Fatalf("buildResolver: %v", err)
	}
	chain, ok := r.(identity.Chain)
	if !ok || len(chain) != 2 {
		t.Errorf("resolver = %#v, want a chain of 2", r)
	}
}

func TestBuildResolver_StaticEntriesFirst(t *testing.T) {
	cfg := &config.Config{
		Directory: config.DirectoryConfig{Static: map[string]string{"U1": "ana@example.com"}},
	}
	r, err := buildResolver(cfg, telegraph.NewOfflineGateway())
	if err != nil {
		t.Fatalf("buildResolver: %v", err)
	}
	chain, ok := r.(identity.Chain)
	if !ok || len(chain) != 1 {
		t.Fatalf("resolver = %#v, want a chain of 1", r)
	}
	if _, ok := chain[0].(identity.Static); !ok {
		t.Errorf("chain[0] = %T, want identity.Static", chain[0])
	}
	email, err := r.ResolveEmail(context.Background(), "u1")
	if err != nil || email != "ana@example.com" {
		t.Errorf("ResolveEmail(u1) = %q, %v", email, err)
	}
}
