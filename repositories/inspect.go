package repositories

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Row is one store entry decoded for humans.
type Row struct {
	Key    string
	Kind   string
	At     string
	Detail string
}

// Inspect visits every entry whose key starts with prefix, in key order.
// Values that cannot be decoded are still visited, with their size as detail.
func Inspect(db *badger.DB, prefix string, visit func(Row)) error {
	return db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(options.Prefix); it.ValidForPrefix(options.Prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				visit(describe(key, val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func describe(key string, val []byte) Row {
	kind, _, _ := strings.Cut(key, ":")
	row := Row{Key: strings.ReplaceAll(key, "\x00", "/"), Kind: kind, At: "-"}
	var err error
	switch kind {
	case "msg":
		var disk DiskMessage
		if err = unmarshal(val, &disk); err == nil {
			to := "#" + disk.ChannelID
			if disk.RecipientID != "" {
				to = "@" + disk.RecipientID
			}
			row.At = stamp(disk.At)
			row.Detail = fmt.Sprintf("%s -> %s: %s", disk.SenderID, to, clip(disk.Content))
			if disk.Attachment != nil {
				row.Detail += fmt.Sprintf(" [%s %s]", disk.Attachment.Name, disk.Attachment.MimeType)
			}
		}
	case "conv":
		row.Detail = string(val)
		encoded, _, _ := strings.Cut(strings.TrimPrefix(key, "conv:"), ":")
		if conversation, decodeErr := base64.RawURLEncoding.DecodeString(encoded); decodeErr == nil {
			row.Detail = string(conversation) + " " + row.Detail
		}
	case "react":
		var disk DiskReaction
		if err = unmarshal(val, &disk); err == nil {
			row.At = stamp(disk.At)
		}
	case "user":
		var disk DiskUser
		if err = unmarshal(val, &disk); err == nil {
			row.Detail = fmt.Sprintf("%s (%s)", disk.DisplayName, disk.Username)
		}
	case "chan":
		var disk DiskChannel
		if err = unmarshal(val, &disk); err == nil {
			row.At = stamp(disk.At)
			row.Detail = fmt.Sprintf("%s by %s", disk.Name, disk.CreatedBy)
		}
	case "invite":
		var disk DiskInvitation
		if err = unmarshal(val, &disk); err == nil {
			row.At = stamp(disk.At)
			row.Detail = fmt.Sprintf("%s invited %s", disk.InviterID, disk.InviteeID)
		}
	}
	if err != nil || (row.Detail == "" && len(val) > 0) {
		row.Detail = fmt.Sprintf("%d bytes", len(val))
	}
	return row
}

func stamp(unixNano int64) string {
	return time.Unix(0, unixNano).UTC().Format(time.DateTime)
}

func clip(s string) string {
	const width = 60
	if r := []rune(s); len(r) > width {
		return string(r[:width]) + "…"
	}
	return s
}
