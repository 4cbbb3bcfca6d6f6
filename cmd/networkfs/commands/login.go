package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/networkfs/internal/winclient"
	"github.com/fruitsalade/networkfs/pkg/client"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Verify and save a mount credential",
	Long: `Read a token from the argument, --token or the terminal, check it against the
directory service by listing the root, and save it for later commands.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := cfg.Client.Token
		if len(args) == 1 {
			token = args[0]
		}
		if token == "" {
			var err error
			if token, err = promptToken(); err != nil {
				return err
			}
		}

		core, err := winclient.NewClientCore(coreConfig(cfg.Client, token))
		if err != nil {
			return err
		}
		defer core.Close()

		if err := core.Client.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("server %s unreachable: %w", cfg.Client.ServerURL, err)
		}
		root := core.Session.Root()
		if _, err := core.Session.ReadDir(cmd.Context(), root.ID, root.ID); err != nil {
			return fmt.Errorf("credential rejected: %w", err)
		}

		path := credentialPath()
		if err := client.SaveCredential(path, &client.Credential{Token: token, Server: cfg.Client.ServerURL}); err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s. Credential saved to %s\n", protocol.RedactToken(token), path)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the saved credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteCredential(credentialPath()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}
