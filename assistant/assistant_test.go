package assistant

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"chat-hub/mention"

	"github.com/blugelabs/bluge"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newRetriever(t *testing.T) *Retriever {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewRetriever(logs.GetLoggerFromLevel(slog.LevelDebug), writer)
}

const handbook = `Deployments happen every Tuesday after the standup.

Expense reports are submitted through the finance portal before the fifth of each month.

The VPN must be enabled to reach the staging cluster.`

func TestRetriever_Search_Ranks_Matching_Paragraph(t *testing.T) {
	req := require.New(t)
	retriever := newRetriever(t)

	// Given a handbook split into paragraphs
	passages, err := retriever.Index("handbook.md", "handbook", handbook)
	req.NoError(err)
	req.Equal(3, passages)

	// When searching for expenses
	found, err := retriever.Search(context.Background(), "how do I submit expense reports", 3)

	// Then the finance paragraph comes first
	req.NoError(err)
	req.NotEmpty(found)
	req.Equal("handbook.md#1", found[0].ID)
	req.Equal("handbook", found[0].Title)
	req.Contains(found[0].Body, "finance portal")
}

func TestRetriever_Index_Replaces_Document(t *testing.T) {
	req := require.New(t)
	retriever := newRetriever(t)

	_, err := retriever.Index("faq.md", "faq", "The office closes at six.")
	req.NoError(err)
	_, err = retriever.Index("faq.md", "faq", "The office closes at eight.")
	req.NoError(err)

	found, err := retriever.Search(context.Background(), "office closes", 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal("The office closes at eight.", found[0].Body)

	// A shorter version drops the trailing passages
	_, err = retriever.Index("faq.md", "faq", "Parking is free.\n\nThe office closes at nine.")
	req.NoError(err)
	_, err = retriever.Index("faq.md", "faq", "Parking is free.")
	req.NoError(err)
	found, err = retriever.Search(context.Background(), "office closes", 10)
	req.NoError(err)
	req.Empty(found)
}

func TestRetriever_LoadDirectory_Skips_Binary_Files(t *testing.T) {
	req := require.New(t)
	retriever := newRetriever(t)
	dir := t.TempDir()
	req.NoError(os.WriteFile(filepath.Join(dir, "handbook.md"), []byte(handbook), 0o600))
	req.NoError(os.MkdirAll(filepath.Join(dir, "img"), 0o700))
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	req.NoError(os.WriteFile(filepath.Join(dir, "img", "logo.png"), png, 0o600))

	documents, err := retriever.LoadDirectory(dir)

	req.NoError(err)
	req.Equal(1, documents)
}

func TestResponder_Respond(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	retriever := newRetriever(t)
	_, err := retriever.Index("handbook.md", "handbook", handbook)
	req.NoError(err)
	handles, err := mention.NewMatcher([]string{"@assistant"})
	req.NoError(err)
	responder := NewResponder(logs.GetLoggerFromLevel(slog.LevelDebug), retriever, handles, 1)

	t.Run("quotes the best passage", func(t *testing.T) {
		answer, err := responder.Respond(ctx, "@assistant when are deployments?", "alice")
		require.NoError(t, err)
		require.Contains(t, answer, "Deployments happen every Tuesday")
		require.Contains(t, answer, "(handbook)")
	})

	t.Run("admits when nothing matches", func(t *testing.T) {
		answer, err := responder.Respond(ctx, "@assistant quantum chromodynamics", "alice")
		require.NoError(t, err)
		require.Equal(t, noAnswer, answer)
	})

	t.Run("a bare mention gets a prompt", func(t *testing.T) {
		answer, err := responder.Respond(ctx, "@Assistant", "alice")
		require.NoError(t, err)
		require.NotEmpty(t, answer)
	})
}
