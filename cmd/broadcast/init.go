package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/broadcast/internal/group"
)

var (
	initWebhookURL  string
	initGroups      []string
	initUsername    string
	initPassword    string
	initListenAddr  string
	initHistoryPath string
	initOutput      string
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize broadcast configuration",
	Long: `Interactive wizard to create a broadcast configuration file.

Missing values are prompted for. A CSRF key is always generated, and a
password hash is written when a username is given.

Examples:
  # Interactive mode - prompts for missing values
  broadcast init

  # Non-interactive with all flags
  broadcast init --webhook-url https://n8n.example.com/webhook/send \
    --group "120363@g.us=Team A" --group "120364@g.us=Team B" -o broadcast.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initWebhookURL, "webhook-url", "", "Webhook endpoint that delivers broadcasts")
	initCmd.Flags().StringArrayVar(&initGroups, "group", nil, `Group as "id=Name" (repeatable)`)
	initCmd.Flags().StringVar(&initUsername, "username", "", "Basic auth username (empty disables auth)")
	initCmd.Flags().StringVar(&initPassword, "password", "", "Basic auth password (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initListenAddr, "listen", ":8090", "Web server listen address")
	initCmd.Flags().StringVar(&initHistoryPath, "history-path", "broadcast-history.db", "History journal path (empty disables it)")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

type initOptions struct {
	WebhookURL   string
	Groups       []group.Group
	Username     string
	PasswordHash string
	CSRFKey      string
	ListenAddr   string
	HistoryPath  string
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Broadcast Configuration Wizard")
	fmt.Fprintln(out, "==============================")
	fmt.Fprintln(out)

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	if initWebhookURL == "" {
		initWebhookURL = prompt(reader, out, "Webhook URL", "")
		if initWebhookURL == "" {
			return fmt.Errorf("webhook URL is required")
		}
	}

	groups, err := parseGroupFlags(initGroups)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintln(out, "Enter groups, one per prompt. Leave the id empty to finish.")
		for {
			id := prompt(reader, out, "  Group id", "")
			if id == "" {
				break
			}
			name := prompt(reader, out, "  Group name", id)
			groups = append(groups, group.Group{ID: id, Name: name})
		}
	}
	if _, err := group.NewCatalog(groups); err != nil {
		return err
	}

	opts := initOptions{
		WebhookURL:  initWebhookURL,
		Groups:      groups,
		Username:    initUsername,
		ListenAddr:  initListenAddr,
		HistoryPath: initHistoryPath,
		CSRFKey:     generateRandomString(64),
	}

	if opts.Username != "" {
		if initPassword == "" {
			initPassword = generateRandomString(20)
			fmt.Fprintf(out, "  Generated password for %s: %s\n", opts.Username, initPassword)
		}
		opts.PasswordHash, err = hashPassword(initPassword)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig(opts)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "  Configuration saved to: %s\n", initOutput)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next Steps")
	fmt.Fprintln(out, "==========")
	fmt.Fprintf(out, "  broadcast config validate -c %s\n", initOutput)
	fmt.Fprintf(out, "  broadcast serve -c %s\n", initOutput)

	return nil
}

// parseGroupFlags turns "id=Name" values into groups. A value without "=" uses the id as name.
func parseGroupFlags(values []string) ([]group.Group, error) {
	groups := make([]group.Group, 0, len(values))
	for _, v := range values {
		id, name, _ := strings.Cut(v, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid group %q: empty id", v)
		}
		groups = append(groups, group.Group{ID: id, Name: strings.TrimSpace(name)})
	}
	return groups, nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultValue)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(opts initOptions) string {
	var groups strings.Builder
	for _, g := range opts.Groups {
		name := g.Name
		if name == "" {
			name = g.ID
		}
		fmt.Fprintf(&groups, "  - id: %q\n    name: %q\n", g.ID, name)
	}

	return fmt.Sprintf(`# Broadcast configuration
# Generated by: broadcast init

server:
  listen_addr: %q
  # tls:
  #   enabled: true
  #   cert_file: /etc/broadcast/cert.pem
  #   key_file: /etc/broadcast/key.pem

webhook:
  url: %q
  # timeout: 30s
  # headers:
  #   X-Api-Key: "..."

groups:
%s
auth:
  username: %q
  password_hash: %q
  csrf_key: %q

logging:
  level: "info"
  format: "json"

metrics:
  enabled: false
  listen_addr: ":9091"
  path: "/metrics"
  allowed_ips:
    - "127.0.0.1"

history:
  path: %q
`,
		opts.ListenAddr,
		opts.WebhookURL,
		groups.String(),
		opts.Username,
		opts.PasswordHash,
		opts.CSRFKey,
		opts.HistoryPath,
	)
}
