package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pastoralist/pkg/integrations/command"
	"github.com/matzehuels/pastoralist/pkg/security/providers"
)

// providerStatus describes whether a provider can run on this machine.
type providerStatus struct {
	Name  string
	Ready bool
	Note  string
}

// providersCommand creates the providers command.
func (c *CLI) providersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List security providers and whether they are ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := providerStatuses(c.Runner, os.Getenv)
			rows := make([][]string, len(statuses))
			for i, s := range statuses {
				mark := styleIconWarning.Render(iconWarning)
				if s.Ready {
					mark = styleIconSuccess.Render(iconSuccess)
				}
				rows[i] = []string{mark, s.Name, s.Note}
			}
			fmt.Fprintln(cmd.OutOrStdout(), newTable("", "Provider", "Status").Rows(rows...).Render())
			return nil
		},
	}
}

// providerStatuses checks prerequisites without contacting any service.
func providerStatuses(r command.Runner, getenv func(string) string) []providerStatus {
	has := func(bin string) bool {
		_, err := r.LookPath(bin)
		return err == nil
	}
	var out []providerStatus
	for _, name := range providers.Names {
		s := providerStatus{Name: name}
		switch name {
		case "osv":
			s.Ready, s.Note = true, "no credentials needed"
		case "github":
			switch {
			case getenv("PASTORALIST_MOCK_SECURITY") != "":
				s.Ready, s.Note = true, "mock mode"
			case has("gh"):
				s.Ready, s.Note = true, "gh CLI (run `gh auth status` to confirm login)"
			case getenv("GITHUB_TOKEN") != "":
				s.Ready, s.Note = true, "GITHUB_TOKEN"
			default:
				s.Note = "install gh or set GITHUB_TOKEN"
			}
		case "snyk":
			s.Ready, s.Note = cliStatus(has("snyk"), has("npm"), getenv("SNYK_TOKEN") != "", "SNYK_TOKEN", "or `snyk auth`")
		case "socket":
			s.Ready, s.Note = cliStatus(has("socket"), has("npm"), getenv("SOCKET_SECURITY_API_KEY") != "", "SOCKET_SECURITY_API_KEY", "")
		}
		out = append(out, s)
	}
	return out
}

func cliStatus(installed, npm, token bool, tokenVar, alt string) (bool, string) {
	note := ""
	switch {
	case installed:
		note = "CLI installed"
	case npm:
		note = "CLI will be installed with npm"
	default:
		return false, "CLI missing and npm not found"
	}
	if token {
		return true, note + ", " + tokenVar + " set"
	}
	if alt != "" {
		return true, note + ", set " + tokenVar + " " + alt
	}
	return false, note + ", set " + tokenVar
}
