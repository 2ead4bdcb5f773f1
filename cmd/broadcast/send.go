package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/group"
	"github.com/foxzi/broadcast/internal/history"
	"github.com/foxzi/broadcast/internal/webhook"
)

var (
	sendMessage string
	sendGroups  []string
	sendAll     bool
	sendYes     bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message from the terminal",
	Long: `Send a message to one or more groups through the configured webhook.

The same rules as the web form apply: the message must not be blank, at least
one group must be selected, and the send is confirmed before anything goes out.

The attempt is recorded in the history journal when one is configured. While
"broadcast serve" holds the journal, the send goes out unrecorded with a warning.

Examples:
  broadcast send -c config.yaml -m "Standup moved to 10:00" -g team-a -g team-b
  broadcast send -c config.yaml -m "Office closed today" --all --yes`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "Message text")
	sendCmd.Flags().StringArrayVarP(&sendGroups, "group", "g", nil, "Target group id (repeatable)")
	sendCmd.Flags().BoolVar(&sendAll, "all", false, "Send to every group in the catalog")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(sendCmd)
}

type sendOptions struct {
	Message string
	Groups  []string
	All     bool
	Yes     bool
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.Logging)

	var sender composer.Sender = webhook.NewClient(cfg.Webhook.URL, webhook.Options{
		Timeout:   cfg.Webhook.Timeout,
		Headers:   cfg.Webhook.Headers,
		UserAgent: "broadcast/" + version,
	})

	if cfg.History.Enabled() {
		storage, err := openJournal(cfg.History.Path, logger)
		if err != nil {
			return err
		}
		if storage != nil {
			defer storage.Close()
			sender = history.Record(sender, storage, history.SourceCLI, logger)
		}
	}

	c := composer.New(catalog, sender, logger)
	opts := sendOptions{
		Message: sendMessage,
		Groups:  sendGroups,
		All:     sendAll,
		Yes:     sendYes,
	}

	return sendBroadcast(cmd.Context(), c, catalog, opts, cmd.InOrStdin(), cmd.OutOrStdout())
}

// openJournal opens the history journal. A journal held by a running server
// yields nil so the send can go ahead unrecorded.
func openJournal(path string, logger *slog.Logger) (*history.Storage, error) {
	storage, err := history.Open(path)
	if errors.Is(err, history.ErrLocked) {
		logger.Warn("history journal in use, sending without recording", "path", path)
		return nil, nil
	}
	return storage, err
}

// sendBroadcast drives the composer through request, confirmation and send
func sendBroadcast(ctx context.Context, c *composer.Composer, catalog *group.Catalog, opts sendOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.All {
		c.ToggleAll(true)
	} else {
		if unknown := catalog.Unknown(opts.Groups); len(unknown) > 0 {
			return fmt.Errorf("unknown group(s): %s", strings.Join(unknown, ", "))
		}
		c.SetSelection(opts.Groups)
	}
	c.SetMessage(opts.Message)

	conf, err := c.RequestSend()
	if err != nil {
		if errors.Is(err, composer.ErrValidation) {
			return errors.New(c.Outcome().Text)
		}
		return err
	}

	if !opts.Yes {
		fmt.Fprintf(out, "Send this message to %d group(s)?\n", conf.Count)
		fmt.Fprintf(out, "  Groups: %s\n", strings.Join(catalog.Names(c.Selected()), ", "))
		fmt.Fprintf(out, "  Preview: %s\n", conf.Preview)
		fmt.Fprint(out, "Confirm [y/N]: ")

		answer, _ := bufio.NewReader(in).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			c.CancelConfirmation()
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	outcome, err := c.ConfirmSend(ctx)
	if err != nil {
		return err
	}
	if outcome.IsFailure() {
		return errors.New(outcome.Text)
	}

	fmt.Fprintln(out, outcome.Text)
	return nil
}
