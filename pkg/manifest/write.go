package manifest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
)

const lockRetryDelay = 50 * time.Millisecond

// Change pins one package to a version.
type Change struct {
	Name        string
	FromVersion string
	ToVersion   string
	Reason      string
	Provider    string
}

// ApplyOptions configures [ApplyOverrides].
type ApplyOptions struct {
	// PackageManager selects the override field. Empty means detect it from
	// the project directory.
	PackageManager string

	// Dependent is recorded in each appendix entry's dependents map.
	// Defaults to the manifest name, or "root".
	Dependent string

	// Now is the clock used for the backup name and ledger dates.
	Now func() time.Time
}

// Backup describes a backup file next to a manifest.
type Backup struct {
	Path    string
	Created time.Time
}

// ApplyOverrides writes changes into the manifest at path. It holds a file
// lock for the whole operation, copies the manifest to
// "<path>.backup-<unixMillis>" and verifies the copy before rewriting.
// The rewrite touches only the override field for the package manager and
// the pastoralist appendix. It returns the backup path.
func ApplyOverrides(ctx context.Context, path string, changes []Change, opts ApplyOptions) (string, error) {
	if len(changes) == 0 {
		return "", nil
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	unlock, err := lock(ctx, path)
	if err != nil {
		return "", err
	}
	defer unlock()

	original, err := os.ReadFile(path)
	if err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "read %s", path)
	}
	m, err := Parse(original)
	if err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	doc, err := parseObject(original)
	if err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeInvalidManifest, err, "parse %s", path)
	}

	now := opts.Now()
	backup, err := writeBackup(path, original, now)
	if err != nil {
		return "", err
	}

	manager := opts.PackageManager
	if manager == "" {
		manager = DetectPackageManager(filepath.Dir(path), m)
	}
	dependent := opts.Dependent
	if dependent == "" {
		dependent = m.Name
	}
	if dependent == "" {
		dependent = "root"
	}

	if err := setOverrides(doc, OverrideField(manager), changes); err != nil {
		return backup, pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "update overrides in %s", path)
	}
	if err := setAppendix(doc, m.Appendix(), changes, dependent, now); err != nil {
		return backup, pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "update appendix in %s", path)
	}

	out, err := doc.indent()
	if err != nil {
		return backup, pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "encode %s", path)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return backup, pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "write %s", path)
	}
	return backup, nil
}

func setOverrides(doc *object, field []string, changes []Change) error {
	parent := doc
	var parents []*object
	for _, key := range field[:len(field)-1] {
		parents = append(parents, parent)
		parent = parent.child(key)
	}
	leaf := field[len(field)-1]
	overrides := parent.child(leaf)
	for _, c := range changes {
		if err := overrides.setValue(c.Name, c.ToVersion); err != nil {
			return err
		}
	}
	if err := parent.setValue(leaf, overrides); err != nil {
		return err
	}
	// Re-attach nested objects bottom-up.
	for i := len(parents) - 1; i >= 0; i-- {
		if err := parents[i].setValue(field[i], parent); err != nil {
			return err
		}
		parent = parents[i]
	}
	return nil
}

func setAppendix(doc *object, existing map[string]AppendixEntry, changes []Change, dependent string, now time.Time) error {
	additions := make(map[string]AppendixEntry, len(changes))
	date := now.UTC().Format(time.RFC3339)
	for _, c := range changes {
		additions[AppendixKey(c.Name, c.ToVersion)] = AppendixEntry{
			Dependents: map[string]string{dependent: c.Name + "@" + c.FromVersion},
			Ledger: &Ledger{
				AddedDate:        date,
				Reason:           c.Reason,
				SecurityChecked:  true,
				SecurityProvider: c.Provider,
			},
		}
	}
	section := doc.child("pastoralist")
	if err := section.setValue("appendix", MergeAppendix(existing, additions)); err != nil {
		return err
	}
	return doc.setValue("pastoralist", section)
}

// Rollback restores the manifest at path from backup. An empty backup means
// the newest backup on disk.
func Rollback(ctx context.Context, path, backup string) (string, error) {
	if backup == "" {
		backups, err := ListBackups(path)
		if err != nil {
			return "", err
		}
		if len(backups) == 0 {
			return "", pserrors.New(pserrors.ErrCodeBackupNotFound, "no backups found for %s", path)
		}
		backup = backups[0].Path
	}

	data, err := os.ReadFile(backup)
	if err != nil {
		if os.IsNotExist(err) {
			return "", pserrors.Wrap(pserrors.ErrCodeBackupNotFound, err, "backup %s", backup)
		}
		return "", pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "read backup %s", backup)
	}
	if _, err := Parse(data); err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeInvalidManifest, err, "backup %s", backup)
	}

	unlock, err := lock(ctx, path)
	if err != nil {
		return "", err
	}
	defer unlock()

	if err := writeFileAtomic(path, data); err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "restore %s", path)
	}
	return backup, nil
}

// ListBackups returns the backups of the manifest at path, newest first.
func ListBackups(path string) ([]Backup, error) {
	prefix := filepath.Base(path) + ".backup-"
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeInvalidPath, err, "list backups for %s", path)
	}
	var backups []Backup
	for _, e := range entries {
		suffix, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok || e.IsDir() {
			continue
		}
		millis, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Path:    filepath.Join(filepath.Dir(path), e.Name()),
			Created: time.UnixMilli(millis),
		})
	}
	slices.SortFunc(backups, func(a, b Backup) int { return b.Created.Compare(a.Created) })
	return backups, nil
}

// BackupPath returns the backup name for path at t.
func BackupPath(path string, t time.Time) string {
	return path + ".backup-" + strconv.FormatInt(t.UnixMilli(), 10)
}

func writeBackup(path string, data []byte, now time.Time) (string, error) {
	backup := BackupPath(path, now)
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeBackupFailed, err, "write backup %s", backup)
	}
	check, err := os.ReadFile(backup)
	if err != nil || !bytes.Equal(check, data) {
		return "", pserrors.Wrap(pserrors.ErrCodeBackupFailed, err, "verify backup %s", backup)
	}
	return backup, nil
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// lock takes an exclusive lock keyed on the absolute manifest path. The lock
// file lives in the temp dir so projects are not littered with it.
func lock(ctx context.Context, path string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeInvalidPath, err, "resolve %s", path)
	}
	sum := sha256.Sum256([]byte(abs))
	fl := flock.New(filepath.Join(os.TempDir(), "pastoralist-"+hex.EncodeToString(sum[:8])+".lock"))
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		return nil, pserrors.Wrap(pserrors.ErrCodeManifestWrite, err, "lock %s", path)
	}
	return func() { _ = fl.Unlock() }, nil
}
