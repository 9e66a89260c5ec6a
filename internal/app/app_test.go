package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fhirsync/internal/config"
	"fhirsync/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.NewConfig("host-1", t.TempDir())
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *FHIRApp {
	t.Helper()
	opts = append([]Option{
		WithStderr(io.Discard),
		WithClock(testutil.FixedClock()),
		WithIDGenerator(testutil.NewPrefixedIDGenerator("srv")),
	}, opts...)
	a, err := NewFHIRApp(context.Background(), cfg, "Test", opts...)
	if err != nil {
		t.Fatalf("NewFHIRApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func writeResources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "patient.json"),
		`{"resourceType":"Patient","id":"p1","name":[{"family":"Müller","given":["Jonas"]}]}`)
	writeFile(t, filepath.Join(dir, "obs", "observation.yaml"), `
resourceType: Observation
id: o1
status: final
subject:
  reference: Patient/p1
`)
	writeFile(t, filepath.Join(dir, "draft.tmp"), `{"resourceType":"Patient","id":"ignored"}`)
	return dir
}

func TestNewFHIRApp_RequiresMigratedDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	_, err := NewFHIRApp(ctx, cfg, "Search", WithStderr(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "db migrate") {
		t.Fatalf("NewFHIRApp() error = %v, want migration hint", err)
	}

	a, err := NewFHIRApp(ctx, cfg, "Migrate", WithStderr(io.Discard), WithoutMigrationCheck())
	if err != nil {
		t.Fatalf("NewFHIRApp() error = %v", err)
	}
	if err := a.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	st, err := a.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if !st.UpToDate() {
		t.Errorf("MigrationStatus() = %+v, want up to date", st)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	newTestApp(t, cfg)

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, logFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "operation finished") {
		t.Errorf("log file does not record finished operations: %q", data)
	}
}

func TestFHIRApp_ImportSearchAndSync(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Type = "memory"
	a := newTestApp(t, cfg)

	n, err := a.ImportDir(ctx, writeResources(t))
	if err != nil {
		t.Fatalf("ImportDir() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("ImportDir() = %d, want 2", n)
	}

	if count, err := a.PendingCount(ctx); err != nil || count != 2 {
		t.Fatalf("PendingCount() = %d, %v, want 2", count, err)
	}

	params := SearchParams{
		Type:       "Patient",
		Where:      []string{"name.family=MULLER"},
		RevInclude: []string{"Observation:subject"},
	}
	result, err := a.Search(ctx, params)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Resources) != 1 || result.Resources[0].Resource.ID != "p1" {
		t.Fatalf("Search() resources = %+v, want p1", result.Resources)
	}
	if len(result.RevIncluded) != 1 || result.RevIncluded[0].Resource.ID != "o1" {
		t.Fatalf("Search() revincluded = %+v, want o1", result.RevIncluded)
	}
	if count, err := a.Count(ctx, SearchParams{Type: "Observation"}); err != nil || count != 1 {
		t.Errorf("Count() = %d, %v, want 1", count, err)
	}

	pushed, err := a.Push(ctx)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if pushed != 2 {
		t.Errorf("Push() = %d, want 2", pushed)
	}
	if count, _ := a.PendingCount(ctx); count != 0 {
		t.Errorf("PendingCount() after push = %d, want 0", count)
	}

	p, err := a.Get(ctx, "Patient", "p1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if meta := p.Meta(); meta.VersionID != "1" {
		t.Errorf("versionId after push = %q, want 1", meta.VersionID)
	}
	history, err := a.RemoteHistory(ctx, "Patient", "p1")
	if err != nil {
		t.Fatalf("RemoteHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("len(RemoteHistory()) = %d, want 1", len(history))
	}

	// A second host sharing the remote pulls what the first one pushed.
	other := config.NewConfig("host-2", t.TempDir())
	other.Database.Type = "memory"
	other.Remote.FSRoot = cfg.Remote.FSRoot
	b := newTestApp(t, other)

	pulled, err := b.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if pulled != 2 {
		t.Errorf("Pull() = %d, want 2", pulled)
	}
	obs, err := b.Get(ctx, "Observation", "o1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if obs.Meta().VersionID != "1" {
		t.Errorf("pulled versionId = %q, want 1", obs.Meta().VersionID)
	}
	if count, _ := b.PendingCount(ctx); count != 0 {
		t.Errorf("pulled resources recorded %d changes, want 0", count)
	}
}

func TestFHIRApp_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Type = "memory"
	a := newTestApp(t, cfg)
	dir := t.TempDir()

	path := filepath.Join(dir, "patient.json")
	writeFile(t, path, `{"resourceType":"Patient","id":"p1","active":true}`)
	ids, err := a.Create(ctx, path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("Create() = %v, want [p1]", ids)
	}

	writeFile(t, path, `{"resourceType":"Patient","id":"p1","active":false}`)
	if n, err := a.Update(ctx, path); err != nil || n != 1 {
		t.Fatalf("Update() = %d, %v, want 1", n, err)
	}
	p, err := a.Get(ctx, "Patient", "p1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.Fields["active"] != false {
		t.Errorf("active = %v, want false", p.Fields["active"])
	}

	if err := a.Delete(ctx, "Patient", "p1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := a.Get(ctx, "Patient", "p1"); err == nil {
		t.Error("Get() after Delete() should return error")
	}

	changes, err := a.PendingChanges(ctx)
	if err != nil {
		t.Fatalf("PendingChanges() error = %v", err)
	}
	if len(changes) != 3 {
		t.Errorf("len(PendingChanges()) = %d, want 3", len(changes))
	}
	if a.op.Status != "success" {
		t.Errorf("operation status = %q, want success", a.op.Status)
	}

	if _, err := a.Create(ctx, filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Create() with a missing file should return error")
	}
	if a.op.Status != "error" {
		t.Errorf("operation status = %q, want error", a.op.Status)
	}
}

func TestFHIRApp_PurgeRequiresForce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Type = "memory"
	a := newTestApp(t, cfg)

	path := filepath.Join(t.TempDir(), "patient.json")
	writeFile(t, path, `{"resourceType":"Patient","id":"p1"}`)
	if _, err := a.Create(ctx, path); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := a.Purge(ctx, "Patient", "p1", false); err == nil {
		t.Fatal("Purge() without force should fail while changes are pending")
	}
	if err := a.Purge(ctx, "Patient", "p1", true); err != nil {
		t.Fatalf("Purge(force) error = %v", err)
	}
	if count, _ := a.PendingCount(ctx); count != 0 {
		t.Errorf("PendingCount() after forced purge = %d, want 0", count)
	}
}

func TestFHIRApp_EncryptedStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Type = "memory"
	cfg.Database.Encrypted = true
	cfg.Encryption.Type = "test"

	a := newTestApp(t, cfg, WithPassphraseFunc(func() (string, error) { return "secret", nil }))

	path := filepath.Join(t.TempDir(), "patient.json")
	writeFile(t, path, `{"resourceType":"Patient","id":"p1","name":[{"family":"Smith"}]}`)
	if _, err := a.Create(ctx, path); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	result, err := a.Search(ctx, SearchParams{Type: "Patient", Where: []string{"name.family=smith"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Resources) != 1 {
		t.Errorf("Search() found %d resources, want 1", len(result.Resources))
	}
}

func TestFHIRApp_Backup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := newTestApp(t, cfg, WithoutMigrationCheck())
	if err := a.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := a.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if err := a.Backup(ctx, dest); err == nil {
		t.Error("Backup() onto an existing file should return error")
	}
}

func TestSetupKeys(t *testing.T) {
	cfg := testConfig(t)
	pass := WithPassphraseFunc(func() (string, error) { return "correct horse", nil })

	if err := SetupKeys(cfg, pass); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	if _, err := os.Stat(cfg.Encryption.PublicKeyPath); err != nil {
		t.Errorf("public key missing: %v", err)
	}
	if err := SetupKeys(cfg, pass); err == nil {
		t.Error("SetupKeys() twice should return error")
	}
}
