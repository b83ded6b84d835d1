package main

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

var rollbackForce bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback <backup-dir>",
	Short: "Restore the vector store from a backup tree",
	Long: `Restore every collection from a tree written by 'backup': reads
manifest.json, verifies each snapshot file's checksum, then upserts
every recorded point back into the vector store.

Prompts for confirmation before writing unless --force is given.
Interrupting mid-restore (Ctrl-C) stops after the current record
finishes upserting rather than leaving a partially-written point.

Examples:
  memctl rollback ~/.ai-memory/backups/20260115T030000Z
  memctl rollback ./snapshot --force`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVar(&rollbackForce, "force", false, "skip the confirmation prompt")
}

func runRollback(cmd *cobra.Command, args []string) error {
	dir := args[0]

	manifestPath := filepath.Join(dir, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest backupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	if len(manifest.Collections) == 0 {
		return newUsageError("manifest at %s lists no collections", manifestPath)
	}

	if !rollbackForce {
		ok, err := confirmRollback(dir, manifest)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("rollback cancelled")
			return nil
		}
	}

	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for _, entry := range manifest.Collections {
		select {
		case <-sigCh:
			return fmt.Errorf("rollback interrupted before restoring %s", entry.Collection)
		default:
		}

		n, err := restoreCollection(c.vectors, dir, entry, sigCh)
		if err != nil {
			return fmt.Errorf("restore %s: %w", entry.Collection, err)
		}
		fmt.Printf("restored %s: %d records\n", entry.Collection, n)
	}

	fmt.Println("rollback complete")
	return nil
}

func confirmRollback(dir string, manifest backupManifest) (bool, error) {
	fmt.Printf("This will overwrite the current vector store with the %s backup taken %s:\n",
		dir, manifest.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	for _, entry := range manifest.Collections {
		fmt.Printf("  %-16s %d records\n", entry.Collection, entry.Count)
	}
	fmt.Print("Continue? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	switch line {
	case "y\n", "Y\n", "yes\n":
		return true, nil
	default:
		return false, nil
	}
}

// restoreCollection verifies entry's checksum, then upserts every
// point from its snapshot file, bailing out early if sigCh fires.
func restoreCollection(store *vectorstore.Store, dir string, entry backupManifestEntry, sigCh <-chan os.Signal) (int, error) {
	path := filepath.Join(dir, entry.File)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != entry.SHA256 {
		return 0, fmt.Errorf("checksum mismatch for %s: manifest says %s", path, entry.SHA256)
	}

	n := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		select {
		case <-sigCh:
			return n, fmt.Errorf("interrupted after restoring %d records", n)
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p vectorstore.Point
		if err := json.Unmarshal(line, &p); err != nil {
			return n, fmt.Errorf("parse record %d: %w", n+1, err)
		}
		if err := store.Upsert(entry.Collection, p); err != nil {
			return n, fmt.Errorf("upsert record %d: %w", n+1, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, err
	}
	return n, nil
}
