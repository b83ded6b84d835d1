package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

var (
	backupOutput      string
	backupIncludeLogs bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the vector store to a timestamped tree",
	Long: `Write every collection to its own JSON-lines snapshot file under a
timestamped output directory, alongside a manifest.json recording
each file's record count and checksum. 'rollback' restores from the
tree this command produces.

Examples:
  memctl backup
  memctl backup --output /var/backups/memctl --include-logs`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVar(&backupOutput, "output", "", "base directory for the backup tree (default: <install-dir>/backups)")
	backupCmd.Flags().BoolVar(&backupIncludeLogs, "include-logs", false, "also copy the trace buffer's log files into the backup tree")
}

type backupManifestEntry struct {
	Collection string `json:"collection"`
	File       string `json:"file"`
	Count      int    `json:"count"`
	SHA256     string `json:"sha256"`
}

type backupManifest struct {
	CreatedAt   time.Time             `json:"created_at"`
	Collections []backupManifestEntry `json:"collections"`
	IncludeLogs bool                  `json:"include_logs"`
}

var backupCollections = []types.Collection{
	types.CollectionCodePatterns,
	types.CollectionConventions,
	types.CollectionDiscussions,
}

func runBackup(cmd *cobra.Command, args []string) error {
	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	base := backupOutput
	if base == "" {
		base = filepath.Join(c.cfg.InstallDir, "backups")
	}
	now := time.Now()
	dir := filepath.Join(base, now.UTC().Format("20060102T150405Z"))

	if GetDryRun() {
		fmt.Printf("[dry-run] would write backup tree to %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory %s: %w", dir, err)
	}

	manifest := backupManifest{CreatedAt: now, IncludeLogs: backupIncludeLogs}
	for _, col := range backupCollections {
		entry, err := snapshotCollection(c.vectors, dir, col)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", col, err)
		}
		manifest.Collections = append(manifest.Collections, entry)
		VerbosePrintf("snapshotted %s: %d records\n", col, entry.Count)
	}

	if backupIncludeLogs {
		if err := copyTraceLogs(c.cfg.InstallDir, dir); err != nil {
			return fmt.Errorf("copy trace logs: %w", err)
		}
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(manifestPath, manifestData, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	fmt.Printf("backup complete: %s\n", dir)
	return nil
}

// snapshotCollection dumps every point in collection to a JSON-lines
// file and records its record count and checksum for the manifest.
func snapshotCollection(store *vectorstore.Store, dir string, collection types.Collection) (backupManifestEntry, error) {
	const maxPointsPerCollection = 1_000_000

	points, err := store.Scroll(string(collection), nil, maxPointsPerCollection, true)
	if err != nil {
		return backupManifestEntry{}, err
	}

	fileName := string(collection) + ".jsonl"
	path := filepath.Join(dir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return backupManifestEntry{}, err
	}
	defer f.Close()

	hasher := sha256.New()
	enc := json.NewEncoder(f)
	for _, p := range points {
		line, err := json.Marshal(p)
		if err != nil {
			return backupManifestEntry{}, err
		}
		hasher.Write(line)
		hasher.Write([]byte{'\n'})
		if err := enc.Encode(p); err != nil {
			return backupManifestEntry{}, err
		}
	}

	return backupManifestEntry{
		Collection: string(collection),
		File:       fileName,
		Count:      len(points),
		SHA256:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func copyTraceLogs(installDir, dest string) error {
	src := filepath.Join(installDir, "traces")
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	logDir := filepath.Join(dest, "traces")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(logDir, e.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
