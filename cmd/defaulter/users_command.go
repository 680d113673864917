package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"defaulter/internal/daemonrun"
	"defaulter/internal/logging"
	"defaulter/internal/viewers"
)

type usersView struct {
	Owner   string                `json:"owner"`
	Viewers []viewerView          `json:"viewers"`
	Groups  []viewers.GroupDigest `json:"groups"`
}

type viewerView struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func newUsersCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List known viewers and the members of every rule group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(session *daemonrun.Session) error {
				if err := session.Manager.Prepare(cmd.Context()); err != nil {
					return err
				}
				view := buildUsersView(session)
				if jsonOutput {
					return writeJSON(cmd, view)
				}
				return printUsers(cmd.OutOrStdout(), view)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print viewers and groups as JSON")
	return cmd
}

func buildUsersView(session *daemonrun.Session) usersView {
	reg := session.Manager.Registry()
	view := usersView{
		Owner:  reg.Owner(),
		Groups: viewers.Digest(session.Rules, reg),
	}
	for _, name := range reg.Viewers() {
		token, _ := reg.Lookup(name)
		view.Viewers = append(view.Viewers, viewerView{Name: name, Token: logging.MaskToken(token)})
	}
	return view
}

func printUsers(out io.Writer, view usersView) error {
	viewerRows := make([][]string, 0, len(view.Viewers))
	for _, v := range view.Viewers {
		role := "viewer"
		if strings.EqualFold(v.Name, view.Owner) {
			role = "owner"
		}
		viewerRows = append(viewerRows, []string{v.Name, role, dash(v.Token)})
	}
	fmt.Fprintln(out, renderTable([]string{"Viewer", "Role", "Token"}, viewerRows, nil))

	groupRows := make([][]string, 0, len(view.Groups))
	for _, g := range view.Groups {
		groupRows = append(groupRows, []string{
			g.Library,
			g.Group,
			dash(strings.Join(g.Resolved, ", ")),
			dash(strings.Join(g.Missing, ", ")),
		})
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"Library", "Group", "With token", "Missing token"}, groupRows, nil))
	return err
}
