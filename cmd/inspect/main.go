// Command inspect prints the content of a chat-relay badger store while the
// relay is stopped or running (read only, lock guard bypassed).
package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	view := flag.String("view", "users", "users | conversation")
	userA := flag.String("a", "", "First user id (conversation view)")
	userB := flag.String("b", "", "Second user id (conversation view)")
	limit := flag.Int("limit", 50, "Conversation page size")
	flag.Parse()

	if err := run(os.Stdout, *dbPath, *view, *userA, *userB, *limit); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render(err.Error()))
		os.Exit(1)
	}
}

func run(out io.Writer, dbPath, view, userA, userB string, limit int) error {
	db, err := badger.Open(badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}
	defer db.Close()

	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctx := context.Background()

	switch view {
	case "users":
		users, err := repositories.NewUserRepository(db, log).ListUsers(ctx, "")
		if err != nil {
			return err
		}
		renderUsers(out, users)
	case "conversation":
		if userA == "" || userB == "" {
			return fmt.Errorf("conversation view needs -a and -b")
		}
		messages, err := repositories.NewMessageRepository(db, log, nil).Conversation(ctx, userA, userB, limit, 0)
		if err != nil {
			return err
		}
		renderMessages(out, messages)
	default:
		return fmt.Errorf("unknown view %q", view)
	}
	return nil
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
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
	return table
}

func renderUsers(out io.Writer, users []domain.User) {
	table := newTable(out, []string{"ID", "Username", "Email", "Presence", "Last seen", "Connection"})
	for _, u := range users {
		presence := color.Gray.Render("offline")
		if u.Presence.Online {
			presence = color.Green.Render("online")
		}
		connection := "-"
		if u.Presence.ConnectionRef != nil {
			connection = shortID(*u.Presence.ConnectionRef)
		}
		table.Append([]string{
			u.ID,
			u.Username,
			u.Email,
			presence,
			u.Presence.LastSeen.Format(time.DateTime),
			connection,
		})
	}
	table.Render()
}

// renderMessages prints newest first, as stored.
func renderMessages(out io.Writer, messages []domain.Message) {
	table := newTable(out, []string{"ID", "At", "Sender", "Receiver", "Kind", "Read", "Content"})
	for _, m := range messages {
		read := color.Yellow.Render("unread")
		if m.IsRead {
			read = color.Green.Render("read")
		}
		table.Append([]string{
			shortID(m.ID),
			m.CreatedAt.Format(time.DateTime),
			shortID(m.SenderID),
			shortID(m.ReceiverID),
			string(m.Kind),
			read,
			m.Content,
		})
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
