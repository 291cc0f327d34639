package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Aliases: []string{"otp"},
	Short:   "Show admin URL with access token",
	Long: `Show the admin events URL with your access token.

The server writes a fresh token on every start. Use this when you've
scrolled past the startup message.

Example:
  forgeline token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokenFile := getTokenFilePath()

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: forgeline serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: forgeline serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Events API: http://localhost:%d/admin/api/events?experiment=<id>&token=%s\n", settings.Server.Port, token)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Scripts can send the header: Authorization: Bearer %s\n", token)
	return nil
}
