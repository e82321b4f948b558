package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"dappled/internal/config"
)

// shortnamePattern is what the service accepts, and what the resolver takes
// for an alias: a leading lowercase letter.
var shortnamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// nameCmd registers a short name for a published notebook under the user's account.
var nameCmd = &cobra.Command{
	Use:   "name <id> <shortname>",
	Short: "Give a published notebook a short name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, shortname := args[0], args[1]
		if !shortnamePattern.MatchString(shortname) {
			return config.Fail("invalid short name %q: use lowercase letters, digits and dashes, starting with a letter", shortname)
		}

		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		publishID, err := a.resolver.PublishID(id)
		if err != nil {
			return userError(err)
		}
		if publishID == "" {
			return config.Fail("unknown notebook %q", id)
		}

		creds, err := promptCredentials(os.Stdin, a.out)
		if err != nil {
			return err
		}
		msg, err := a.remote.Name(cmd.Context(), creds, publishID, shortname)
		if err != nil {
			return err
		}
		if err := a.aliases.Save(creds.Username+"/"+shortname, publishID); err != nil {
			return err
		}
		if msg != "" {
			fmt.Fprintln(a.out, msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nameCmd)
}
