package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
)

const sampleManifest = `{
  "name": "web",
  "version": "1.0.0",
  "scripts": {"test": "jest && node -e \"1<2\""},
  "dependencies": {"lodash": "^4.17.20"},
  "overrides": {"foo": {"bar": "1.0.0"}},
  "license": "MIT"
}
`

func fixedNow() time.Time { return time.UnixMilli(1700000000123) }

func topLevelKeys(t *testing.T, data []byte) []string {
	t.Helper()
	o, err := parseObject(data)
	if err != nil {
		t.Fatalf("parseObject: %v", err)
	}
	return o.keys
}

func TestApplyOverridesNPM(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", sampleManifest)

	backup, err := ApplyOverrides(context.Background(), path, []Change{{
		Name: "lodash", FromVersion: "4.17.20", ToVersion: "4.17.21",
		Reason: "Security fix: Prototype Pollution (high)", Provider: "osv",
	}}, ApplyOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("ApplyOverrides() error: %v", err)
	}

	if backup != path+".backup-1700000000123" {
		t.Errorf("backup = %q", backup)
	}
	saved, err := os.ReadFile(backup)
	if err != nil || string(saved) != sampleManifest {
		t.Errorf("backup should hold the original bytes, err = %v", err)
	}

	out, _ := os.ReadFile(path)
	if !bytes.HasSuffix(out, []byte("}\n")) {
		t.Error("rewrite should end with a trailing newline")
	}
	if !bytes.Contains(out, []byte("\n  \"name\": \"web\"")) {
		t.Errorf("rewrite should use 2-space indent:\n%s", out)
	}
	if !bytes.Contains(out, []byte(`1<2`)) || bytes.Contains(out, []byte(`\u003c`)) {
		t.Error("rewrite must not HTML-escape existing values")
	}

	want := []string{"name", "version", "scripts", "dependencies", "overrides", "license", "pastoralist"}
	if got := topLevelKeys(t, out); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("key order = %v, want %v", got, want)
	}

	var doc struct {
		Overrides   map[string]any `json:"overrides"`
		Pastoralist Pastoralist    `json:"pastoralist"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Overrides["lodash"] != "4.17.21" {
		t.Errorf("overrides.lodash = %v", doc.Overrides["lodash"])
	}
	if _, ok := doc.Overrides["foo"].(map[string]any); !ok {
		t.Error("nested override objects must be preserved")
	}

	entry, ok := doc.Pastoralist.Appendix["lodash@4.17.21"]
	if !ok {
		t.Fatalf("appendix missing lodash@4.17.21: %v", doc.Pastoralist.Appendix)
	}
	if entry.Dependents["web"] != "lodash@4.17.20" {
		t.Errorf("dependents = %v", entry.Dependents)
	}
	if entry.Ledger == nil || !entry.Ledger.SecurityChecked || entry.Ledger.SecurityProvider != "osv" {
		t.Errorf("ledger = %+v", entry.Ledger)
	}
	if entry.Ledger.AddedDate != "2023-11-14T22:13:20Z" {
		t.Errorf("addedDate = %q", entry.Ledger.AddedDate)
	}
}

func TestApplyOverridesYarnAndPnpm(t *testing.T) {
	tests := []struct {
		manager string
		check   func(m *Manifest) string
	}{
		{Yarn, func(m *Manifest) string { return m.Resolutions["lodash"] }},
		{PNPM, func(m *Manifest) string {
			if m.Pnpm == nil {
				return ""
			}
			return m.Pnpm.Overrides["lodash"]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.manager, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "package.json", `{"name":"web","pnpm":{"neverBuiltDependencies":[]}}`)

			_, err := ApplyOverrides(context.Background(), path, []Change{{
				Name: "lodash", FromVersion: "4.17.20", ToVersion: "4.17.21",
			}}, ApplyOptions{PackageManager: tt.manager, Now: fixedNow})
			if err != nil {
				t.Fatalf("ApplyOverrides() error: %v", err)
			}

			m, err := Read(path)
			if err != nil {
				t.Fatal(err)
			}
			if got := tt.check(m); got != "4.17.21" {
				t.Errorf("override = %q, want 4.17.21", got)
			}
			if len(m.Overrides) != 0 {
				t.Errorf("overrides field should be untouched, got %v", m.Overrides)
			}
			out, _ := os.ReadFile(path)
			if tt.manager == PNPM && !bytes.Contains(out, []byte("neverBuiltDependencies")) {
				t.Error("other pnpm keys must be preserved")
			}
		})
	}
}

func TestApplyOverridesDetectsManagerFromLockfile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", `{"name":"web"}`)
	writeFile(t, dir, "yarn.lock", "")

	if _, err := ApplyOverrides(context.Background(), path, []Change{{Name: "a", ToVersion: "1.0.0"}}, ApplyOptions{Now: fixedNow}); err != nil {
		t.Fatal(err)
	}
	m, _ := Read(path)
	if m.Resolutions["a"] != "1.0.0" {
		t.Errorf("yarn project should get resolutions, got %+v", m)
	}
}

func TestApplyOverridesPreservesAppendix(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", `{
  "name": "web",
  "pastoralist": {"appendix": {"qs@6.11.0": {"ledger": {"reason": "keep"}}}}
}`)

	if _, err := ApplyOverrides(context.Background(), path, []Change{{Name: "a", ToVersion: "1.0.0"}}, ApplyOptions{Now: fixedNow}); err != nil {
		t.Fatal(err)
	}
	m, _ := Read(path)
	if _, ok := m.Appendix()["qs@6.11.0"]; !ok {
		t.Error("existing appendix entries must survive a rewrite")
	}
	if _, ok := m.Appendix()["a@1.0.0"]; !ok {
		t.Error("new appendix entry missing")
	}
}

func TestApplyOverridesNoChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", sampleManifest)

	backup, err := ApplyOverrides(context.Background(), path, nil, ApplyOptions{})
	if err != nil || backup != "" {
		t.Errorf("ApplyOverrides(nil) = %q, %v", backup, err)
	}
	backups, _ := ListBackups(path)
	if len(backups) != 0 {
		t.Error("no backup should be written without changes")
	}
}

func TestApplyOverridesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ApplyOverrides(context.Background(), filepath.Join(dir, "missing.json"), []Change{{Name: "a", ToVersion: "1"}}, ApplyOptions{})
	if !pserrors.Is(err, pserrors.ErrCodeManifestWrite) {
		t.Errorf("missing manifest error = %v, want MANIFEST_WRITE", err)
	}

	bad := writeFile(t, dir, "package.json", `[1, 2]`)
	_, err = ApplyOverrides(context.Background(), bad, []Change{{Name: "a", ToVersion: "1"}}, ApplyOptions{})
	if err == nil {
		t.Error("non-object manifest should fail")
	}
}

func TestRollback(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", sampleManifest)

	if _, err := ApplyOverrides(context.Background(), path, []Change{{Name: "lodash", ToVersion: "4.17.21"}}, ApplyOptions{Now: fixedNow}); err != nil {
		t.Fatal(err)
	}

	restored, err := Rollback(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if restored != BackupPath(path, fixedNow()) {
		t.Errorf("Rollback() used %q", restored)
	}
	out, _ := os.ReadFile(path)
	if string(out) != sampleManifest {
		t.Errorf("manifest not restored:\n%s", out)
	}
}

func TestRollbackErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", sampleManifest)

	if _, err := Rollback(context.Background(), path, ""); !pserrors.Is(err, pserrors.ErrCodeBackupNotFound) {
		t.Errorf("no backups error = %v, want BACKUP_NOT_FOUND", err)
	}
	if _, err := Rollback(context.Background(), path, path+".backup-1"); !pserrors.Is(err, pserrors.ErrCodeBackupNotFound) {
		t.Errorf("missing backup error = %v, want BACKUP_NOT_FOUND", err)
	}

	corrupt := writeFile(t, dir, "package.json.backup-5", "not json")
	if _, err := Rollback(context.Background(), path, corrupt); !pserrors.Is(err, pserrors.ErrCodeInvalidManifest) {
		t.Errorf("corrupt backup error = %v, want INVALID_MANIFEST", err)
	}
}

func TestListBackups(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "package.json", "{}")
	writeFile(t, dir, "package.json.backup-1000", "{}")
	writeFile(t, dir, "package.json.backup-3000", "{}")
	writeFile(t, dir, "package.json.backup-2000", "{}")
	writeFile(t, dir, "package.json.backup-nope", "{}")
	writeFile(t, dir, "other.json.backup-4000", "{}")

	backups, err := ListBackups(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 3 {
		t.Fatalf("ListBackups() = %d entries, want 3", len(backups))
	}
	for i, want := range []int64{3000, 2000, 1000} {
		if backups[i].Created.UnixMilli() != want {
			t.Errorf("backups[%d] = %v, want newest first", i, backups[i].Created.UnixMilli())
		}
	}
}
