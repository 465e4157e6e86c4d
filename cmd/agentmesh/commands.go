package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kalambet/agentmesh/internal/config"
	"github.com/kalambet/agentmesh/internal/realtime"
	"github.com/kalambet/agentmesh/internal/rooms"
	"github.com/kalambet/agentmesh/internal/storage"
)

// --- person ---

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Register people",
}

var personCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a person and print their id",
	Long: `Register a person and print their id.

Examples:
  agentmesh person create --name "Ada Lovelace" --email ada@example.com
  export AGENTMESH_PERSON_ID=<printed id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if strings.TrimSpace(name) == "" && strings.TrimSpace(email) == "" {
			return fmt.Errorf("one of --name or --email is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		p, err := createPerson(cmd.Context(), client, name, email)
		if err != nil {
			return err
		}
		printSuccess("Created %s", p.ID)
		fmt.Println(p.ID)
		return nil
	},
}

func createPerson(ctx context.Context, c *apiClient, name, email string) (storage.Person, error) {
	resp, err := c.post(ctx, "/people", map[string]string{"name": name, "email": email})
	if err != nil {
		return storage.Person{}, err
	}
	var p storage.Person
	if err := decodeJSON(resp, &p); err != nil {
		return storage.Person{}, err
	}
	return p, nil
}

func init() {
	personCreateCmd.Flags().String("name", "", "display name")
	personCreateCmd.Flags().String("email", "", "email address for introductions")
	personCmd.AddCommand(personCreateCmd)
}

// --- me ---

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the acting person, their profile and rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := actingClient()
		if err != nil {
			return err
		}
		me, err := fetchMe(cmd.Context(), client)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, me)
	},
}

func fetchMe(ctx context.Context, c *apiClient) (rooms.Me, error) {
	resp, err := c.get(ctx, "/me")
	if err != nil {
		return rooms.Me{}, err
	}
	var me rooms.Me
	if err := decodeJSON(resp, &me); err != nil {
		return rooms.Me{}, err
	}
	return me, nil
}

// actingClient returns an API client that carries the acting person.
func actingClient() (*apiClient, error) {
	if _, err := requirePerson(); err != nil {
		return nil, err
	}
	return newAPIClient()
}

// --- room ---

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Create, join and inspect rooms",
}

var roomCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and join it",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := actingClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/rooms", nil)
		if err != nil {
			return err
		}
		var room storage.Room
		if err := decodeJSON(resp, &room); err != nil {
			return err
		}
		printSuccess("Created room %s", room.Code)
		fmt.Println(room.Code)
		return nil
	},
}

var roomJoinCmd = &cobra.Command{
	Use:   "join <code>",
	Short: "Join a room by its code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := actingClient()
		if err != nil {
			return err
		}
		room, err := joinRoom(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		printSuccess("Joined room %s", room.Code)
		return nil
	},
}

func joinRoom(ctx context.Context, c *apiClient, code string) (storage.Room, error) {
	resp, err := c.post(ctx, "/rooms/join", map[string]string{"code": code})
	if err != nil {
		return storage.Room{}, err
	}
	var room storage.Room
	if err := decodeJSON(resp, &room); err != nil {
		return storage.Room{}, err
	}
	return room, nil
}

var roomStateCmd = &cobra.Command{
	Use:   "state <code>",
	Short: "Show participants and your opportunities in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := actingClient()
		if err != nil {
			return err
		}
		st, err := fetchState(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, st)
		}
		renderState(os.Stdout, st)
		return nil
	},
}

func fetchState(ctx context.Context, c *apiClient, code string) (rooms.State, error) {
	resp, err := c.get(ctx, "/rooms/"+url.PathEscape(strings.TrimSpace(code)))
	if err != nil {
		return rooms.State{}, err
	}
	var st rooms.State
	if err := decodeJSON(resp, &st); err != nil {
		return rooms.State{}, err
	}
	return st, nil
}

// renderState prints a human-readable summary of the viewer's room.
func renderState(w io.Writer, st rooms.State) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Room"), st.Room.Code)
	fmt.Fprintf(w, "\n%s (%d)\n", colorize(colorBold, "Participants"), len(st.Participants))
	for _, p := range st.Participants {
		marker := " "
		if p.ID == st.Me.ID {
			marker = "*"
		}
		line := fmt.Sprintf(" %s %s", marker, nameOr(p.Name, p.ID))
		if p.Headline != "" {
			line += ": " + p.Headline
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\n%s (%d)\n", colorize(colorBold, "Opportunities"), len(st.Opportunities))
	for _, o := range st.Opportunities {
		intro, question, mine := o.IntroA, o.QuestionA, o.DecisionA
		if o.ViewerSide == storage.SideB {
			intro, question, mine = o.IntroB, o.QuestionB, o.DecisionB
		}
		fmt.Fprintf(w, "  %s  %s with %s (score %.2f)\n", o.ID, statusLabel(o.Status), nameOr(o.Other.Name, o.Other.ID), o.Score)
		if intro != "" {
			fmt.Fprintf(w, "      %s\n", intro)
		}
		if question != "" {
			fmt.Fprintf(w, "      Q: %s\n", question)
		}
		if mine != "" {
			fmt.Fprintf(w, "      you: %s\n", mine)
		}
	}
}

func statusLabel(status string) string {
	switch status {
	case "ACCEPTED":
		return colorize(colorGreen, status)
	case "DECLINED":
		return colorize(colorRed, status)
	default:
		return colorize(colorYellow, status)
	}
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

var roomMatchCmd = &cobra.Command{
	Use:   "match <code>",
	Short: "Request a matchmaking pass for a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := actingClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/rooms/"+url.PathEscape(strings.TrimSpace(args[0]))+"/matchmaking", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Matchmaking %s for room %s", result["status"], result["room"])
		return nil
	},
}

var roomWatchCmd = &cobra.Command{
	Use:   "watch <code>",
	Short: "Print the room state every time it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := actingClient()
		if err != nil {
			return err
		}
		return watchRoom(cmd.Context(), client, args[0], os.Stdout)
	},
}

// watchRoom subscribes to the room's change events and re-renders the
// state on each one until ctx is cancelled or the server hangs up.
func watchRoom(ctx context.Context, c *apiClient, code string, w io.Writer) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	wsURL, err := c.socketURL("/ws/rooms/" + url.PathEscape(code))
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to room %s: %w", code, err)
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	st, err := fetchState(ctx, c, code)
	if err != nil {
		return err
	}
	renderState(w, st)
	printStep("watching room %s, press Ctrl-C to stop", code)

	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("room %s: %w", code, err)
		}
		if ev.Type != "room_changed" {
			continue
		}
		st, err := fetchState(ctx, c, code)
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		renderState(w, st)
	}
}

func init() {
	roomStateCmd.Flags().Bool("json", false, "print the raw room state as JSON")
	roomCmd.AddCommand(roomCreateCmd, roomJoinCmd, roomStateCmd, roomMatchCmd, roomWatchCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Edit the acting person's profile",
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update profile fields",
	Long: `Update profile fields. Only the flags you pass are changed.

Examples:
  agentmesh profile set --headline "Compiler engineer" --interests "Go, type systems"
  agentmesh profile set --looking-for "a PL researcher" --room K7QX2M`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := profileInputFromFlags(cmd)
		if in == (rooms.ProfileInput{}) {
			return fmt.Errorf("at least one of --headline, --bio, --interests, --looking-for is required")
		}
		room, _ := cmd.Flags().GetString("room")

		client, err := actingClient()
		if err != nil {
			return err
		}
		p, err := saveProfile(cmd.Context(), client, room, in)
		if err != nil {
			return err
		}
		printSuccess("Profile updated")
		return printJSON(os.Stdout, p)
	},
}

func profileInputFromFlags(cmd *cobra.Command) rooms.ProfileInput {
	var in rooms.ProfileInput
	for flag, dst := range map[string]**string{
		"headline":    &in.Headline,
		"bio":         &in.Bio,
		"interests":   &in.Interests,
		"looking-for": &in.LookingFor,
	} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			*dst = &v
		}
	}
	return in
}

func saveProfile(ctx context.Context, c *apiClient, room string, in rooms.ProfileInput) (storage.Profile, error) {
	body := struct {
		rooms.ProfileInput
		RoomCode string `json:"room_code,omitempty"`
	}{in, room}
	resp, err := c.put(ctx, "/profile", body)
	if err != nil {
		return storage.Profile{}, err
	}
	var p storage.Profile
	if err := decodeJSON(resp, &p); err != nil {
		return storage.Profile{}, err
	}
	return p, nil
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file.pdf>",
	Short: "Replace the bio with text extracted from a PDF resume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, _ := cmd.Flags().GetString("room")
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := actingClient()
		if err != nil {
			return err
		}
		resp, err := client.upload(cmd.Context(), "/profile/import", filepath.Base(args[0]), data, map[string]string{"room_code": room})
		if err != nil {
			return err
		}
		var result struct {
			Pages     int  `json:"pages"`
			Truncated bool `json:"truncated"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Imported %d page(s)", result.Pages)
		if result.Truncated {
			printWarning("text was clipped to %d characters", rooms.MaxBio)
		}
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("headline", "", "one-line headline")
	profileSetCmd.Flags().String("bio", "", "free-text bio")
	profileSetCmd.Flags().String("interests", "", "interests")
	profileSetCmd.Flags().String("looking-for", "", "who you would like to meet")
	profileSetCmd.Flags().String("room", "", "room to rematch (default: all your rooms)")
	profileImportCmd.Flags().String("room", "", "room to rematch (default: all your rooms)")
	profileCmd.AddCommand(profileSetCmd, profileImportCmd)
}

// --- opportunity ---

var opportunityCmd = &cobra.Command{
	Use:     "opportunity",
	Aliases: []string{"opp"},
	Short:   "Respond to proposed introductions",
}

var opportunityRespondCmd = &cobra.Command{
	Use:   "respond <id> <accept|decline>",
	Short: "Accept or decline an introduction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, _ := cmd.Flags().GetString("answer")
		client, err := actingClient()
		if err != nil {
			return err
		}
		o, err := respond(cmd.Context(), client, args[0], args[1], answer)
		if err != nil {
			return err
		}
		printSuccess("Opportunity %s is %s", o.ID, o.Status)
		return nil
	},
}

func respond(ctx context.Context, c *apiClient, id, decision, answer string) (storage.Opportunity, error) {
	resp, err := c.post(ctx, "/opportunities/"+url.PathEscape(id)+"/respond", map[string]string{
		"decision": strings.ToUpper(strings.TrimSpace(decision)),
		"answer":   answer,
	})
	if err != nil {
		return storage.Opportunity{}, err
	}
	var o storage.Opportunity
	if err := decodeJSON(resp, &o); err != nil {
		return storage.Opportunity{}, err
	}
	return o, nil
}

func init() {
	opportunityRespondCmd.Flags().String("answer", "", "answer to the question the introduction asked you")
	opportunityCmd.AddCommand(opportunityRespondCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys config set accepts",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configKeysCmd)
}

