package adapters

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trevor-commits/proactive-outreach-crm/internal/db"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

const (
	backupDomain     = "HomeDomain"
	messagesRelPath  = "Library/SMS/sms.db"
	callsRelPath     = "Library/CallHistoryDB/CallHistory.storedata"
	legacyCallsPath  = "Library/CallHistory/call_history.db"
	manifestFileName = "Manifest.db"
)

// BackupFiles are the store files found inside an unencrypted device backup.
type BackupFiles struct {
	Messages string `json:"messages"`
	Calls    string `json:"calls,omitempty"`
}

// LocateBackupFiles finds the message store and call history inside a device
// backup directory. Files are addressed by SHA-1 of "<domain>-<relative path>"
// and live either in a two-character shard directory or at the top level.
// When Manifest.db is present it is consulted first.
func LocateBackupFiles(ctx context.Context, backupDir string) (BackupFiles, error) {
	info, err := os.Stat(backupDir)
	if err != nil {
		return BackupFiles{}, fmt.Errorf("%w: backup directory: %w", model.ErrExtraction, err)
	}
	if !info.IsDir() {
		return BackupFiles{}, fmt.Errorf("%w: %s is not a directory", model.ErrExtraction, backupDir)
	}

	resolve := func(rel string) string {
		if p := lookupManifest(ctx, backupDir, rel); p != "" {
			return p
		}
		return lookupHashed(backupDir, backupFileID(rel))
	}

	files := BackupFiles{Messages: resolve(messagesRelPath)}
	if files.Messages == "" {
		return BackupFiles{}, fmt.Errorf("%w: %s not found in backup %s", model.ErrExtraction, messagesRelPath, backupDir)
	}
	files.Calls = resolve(callsRelPath)
	if files.Calls == "" {
		files.Calls = resolve(legacyCallsPath)
	}
	return files, nil
}

// backupFileID is the on-disk name of a backed up file.
func backupFileID(relPath string) string {
	sum := sha1.Sum([]byte(backupDomain + "-" + relPath))
	return hex.EncodeToString(sum[:])
}

func lookupHashed(backupDir, id string) string {
	for _, p := range []string{
		filepath.Join(backupDir, id[:2], id),
		filepath.Join(backupDir, id),
	} {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// lookupManifest asks Manifest.db for the file ID. Any failure (missing or
// encrypted manifest) falls back to hashing.
func lookupManifest(ctx context.Context, backupDir, rel string) string {
	manifest := filepath.Join(backupDir, manifestFileName)
	if _, err := os.Stat(manifest); err != nil {
		return ""
	}
	m, err := db.OpenArchive(manifest)
	if err != nil {
		return ""
	}
	defer m.Close()

	var id string
	err = m.QueryRowContext(ctx, `
		SELECT fileID FROM Files WHERE domain = ? AND relativePath = ? LIMIT 1
	`, backupDomain, rel).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || err != nil || len(id) < 2 {
		return ""
	}
	return lookupHashed(backupDir, id)
}
