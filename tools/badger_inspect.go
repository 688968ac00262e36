package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Dumps the messaging keyspace as a table. Index keys (direct:, userconv:,
// notifid:, notifdedup:, msgclock:) are skipped unless asked for, they
// only point at primary rows.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, conv:, part:, notif:, profile:)")
	showIndexes := flag.Bool("indexes", false, "Include index keys in the dump")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Owner", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			if !*showIndexes && isIndexKey(key) {
				continue
			}

			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	color.Cyan.Printf("Scanned prefix %q\n", *prefix)
	table.Render()
	color.Green.Printf("%d rows\n", rows)
}

func isIndexKey(key string) bool {
	for _, p := range []string{"direct:", "userconv:", "notifid:", "notifdedup:", "msgclock:", "userteam:", "team:"} {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// describe decodes a row generically: every stored value is a flat JSON
// object, so a map dump is enough for inspection.
func describe(key string, value []byte) []string {
	var fields map[string]any
	if err := json.Unmarshal(value, &fields); err != nil {
		return []string{key, "RAW", "", "", fmt.Sprintf("%d bytes", len(value))}
	}

	kind := "ROW"
	switch {
	case strings.HasPrefix(key, "msg:"):
		kind = "MESSAGE"
	case strings.HasPrefix(key, "conv:"):
		kind = "CONVERSATION"
	case strings.HasPrefix(key, "part:"):
		kind = "PARTICIPANT"
	case strings.HasPrefix(key, "notif:"):
		kind = "NOTIFICATION"
	case strings.HasPrefix(key, "profile:"):
		kind = "PROFILE"
	}

	timestamp := ""
	if raw, ok := fields["created_at"].(string); ok {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			timestamp = at.Format("15:04:05")
		}
	}

	owner := stringField(fields, "user_id", "sender_id", "id")
	if len(owner) > 8 {
		owner = owner[:8]
	}

	detail := stringField(fields, "content", "title", "name", "full_name", "type")
	return []string{key, kind, timestamp, owner, detail}
}

func stringField(fields map[string]any, names ...string) string {
	for _, name := range names {
		if value, ok := fields[name].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
