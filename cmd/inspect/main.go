// Command inspect prints the content of a chat-hub badger store as a table.
// The store is opened read-only, so it can run next to a live server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"chat-hub/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	// msg:, conv:{base64url key}:, react:, user:, chan:, member:, invite:
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	colours := flag.Bool("colours", true, "Colourize the header")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := fmt.Sprintf("  ====== %s %q ======", *dbPath, *prefix)
	if *colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "At", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = repositories.Inspect(db, *prefix, func(row repositories.Row) {
		table.Append([]string{row.Key, row.Kind, row.At, row.Detail})
		count++
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}
	table.Render()
	fmt.Printf("\n%d entries\n", count)
}
