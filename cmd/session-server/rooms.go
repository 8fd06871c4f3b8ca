package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	grpcx "github.com/hanyusok/docplus-dev/internal/transport/grpc"
)

var (
	flagTarget  string
	flagToken   string
	flagTimeout time.Duration
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"r"},
	Short:   "Inspect and close live sessions through the gRPC admin API",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		defer c.Close()

		items, err := c.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		renderRooms(cmd.OutOrStdout(), items)
		return nil
	},
}

var roomsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show participants and the waiting queue of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		defer c.Close()

		room, err := c.GetRoom(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderRoom(cmd.OutOrStdout(), room)
		return nil
	},
}

var roomsCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Disconnect everyone and dispose the room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.CloseRoom(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %s closed\n", args[0])
		return nil
	},
}

func init() {
	pf := roomsCmd.PersistentFlags()
	pf.StringVar(&flagTarget, "target", "localhost:9090", "gRPC admin address")
	pf.StringVar(&flagToken, "token", os.Getenv("SESSION_ADMIN_TOKEN"), "admin token (default $SESSION_ADMIN_TOKEN)")
	pf.DurationVar(&flagTimeout, "timeout", 5*time.Second, "per-call timeout")

	roomsCmd.AddCommand(roomsListCmd, roomsShowCmd, roomsCloseCmd)
}

func adminClient() (*grpcx.Client, error) {
	return grpcx.NewClient(grpcx.Options{
		Target:  flagTarget,
		Timeout: flagTimeout,
		Token:   flagToken,
	})
}

func renderRooms(w io.Writer, items []grpcx.RoomItem) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Session", "Active", "Waiting", "Recording", "Created", "Empty since"})

	var active, waiting int
	for _, it := range items {
		rec := ""
		if it.Recording {
			rec = "yes"
		}
		t.AppendRow(table.Row{it.ID, it.Active, it.Waiting, rec, it.CreatedAt, it.EmptySince})
		active += it.Active
		waiting += it.Waiting
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rooms", len(items)), active, waiting, "", "", ""})
	t.Render()
}

func renderRoom(w io.Writer, room map[string]any) {
	fmt.Fprintf(w, "Session %v (recording: %v, created %v)\n", room["id"], room["recording"], room["createdAt"])

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Participants")
	t.AppendHeader(table.Row{"User", "Name", "Role", "Joined", "Muted", "Sharing"})
	for _, p := range asMaps(room["participants"]) {
		t.AppendRow(table.Row{p["userId"], p["userName"], p["userType"], p["joinedAt"], p["muted"], p["screenSharing"]})
	}
	t.Render()

	waiting := asMaps(room["waiting"])
	if len(waiting) == 0 {
		return
	}
	sort.Slice(waiting, func(i, j int) bool {
		pi, _ := waiting[i]["position"].(float64)
		pj, _ := waiting[j]["position"].(float64)
		return pi < pj
	})

	q := table.NewWriter()
	q.SetOutputMirror(w)
	q.SetStyle(table.StyleLight)
	q.SetTitle("Waiting room")
	q.AppendHeader(table.Row{"#", "User", "Name", "Since"})
	for _, e := range waiting {
		q.AppendRow(table.Row{e["position"], e["userId"], e["userName"], e["joinedAt"]})
	}
	q.Render()
}

func asMaps(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
