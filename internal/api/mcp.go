package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/rooms"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Rooms     *rooms.Service
	Responder *opportunity.Responder
}

// NewMCPServer creates an MCP server that lets an assistant act in rooms
// on behalf of a person. Every tool takes the acting person's id.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"agentmesh",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("agentmesh: AI-mediated introductions between members of a shared room."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("room_state",
			mcp.WithDescription("Show a room as the given person sees it: participants and their open, accepted and declined opportunities."),
			mcp.WithString("person_id", mcp.Description("Id of the person acting"), mcp.Required()),
			mcp.WithString("room_code", mcp.Description("Room code"), mcp.Required()),
		),
		mcpRoomState(deps),
	)

	s.AddTool(
		mcp.NewTool("respond",
			mcp.WithDescription("Accept or decline a proposed introduction, optionally answering the question asked of this person."),
			mcp.WithString("person_id", mcp.Description("Id of the person acting"), mcp.Required()),
			mcp.WithString("opportunity_id", mcp.Description("Opportunity id"), mcp.Required()),
			mcp.WithString("decision", mcp.Description("ACCEPT or DECLINE"), mcp.Required(), mcp.Enum("ACCEPT", "DECLINE")),
			mcp.WithString("answer", mcp.Description("Optional answer, at most 800 characters")),
		),
		mcpRespond(deps),
	)

	s.AddTool(
		mcp.NewTool("trigger_matchmaking",
			mcp.WithDescription("Ask for a matchmaking pass in a room. Passes are debounced and run in the background."),
			mcp.WithString("person_id", mcp.Description("Id of the person acting"), mcp.Required()),
			mcp.WithString("room_code", mcp.Description("Room code"), mcp.Required()),
		),
		mcpTriggerMatchmaking(deps),
	)

	s.AddTool(
		mcp.NewTool("update_profile",
			mcp.WithDescription("Update the person's matchmaking profile. Omitted fields are left unchanged."),
			mcp.WithString("person_id", mcp.Description("Id of the person acting"), mcp.Required()),
			mcp.WithString("headline", mcp.Description("One-line headline, at most 140 characters")),
			mcp.WithString("bio", mcp.Description("Bio, at most 1200 characters")),
			mcp.WithString("interests", mcp.Description("Interests, at most 800 characters")),
			mcp.WithString("looking_for", mcp.Description("Who or what the person is looking for, at most 800 characters")),
			mcp.WithString("room_code", mcp.Description("Room to rematch after the update; all rooms when omitted")),
		),
		mcpUpdateProfile(deps),
	)

	return s
}

func mcpRoomState(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personID, err := req.RequireString("person_id")
		if err != nil {
			return mcpError("person_id is required"), nil
		}
		code, err := req.RequireString("room_code")
		if err != nil {
			return mcpError("room_code is required"), nil
		}

		st, err := deps.Rooms.RoomState(ctx, code, personID)
		if err != nil {
			return mcpError(fmt.Sprintf("room state failed: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpRespond(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personID, err := req.RequireString("person_id")
		if err != nil {
			return mcpError("person_id is required"), nil
		}
		id, err := req.RequireString("opportunity_id")
		if err != nil {
			return mcpError("opportunity_id is required"), nil
		}
		decision, err := req.RequireString("decision")
		if err != nil {
			return mcpError("decision is required"), nil
		}

		o, err := deps.Responder.Respond(ctx, id, personID, decision, req.GetString("answer", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("respond failed: %v", err)), nil
		}
		return mcpJSON(o)
	}
}

func mcpTriggerMatchmaking(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personID, err := req.RequireString("person_id")
		if err != nil {
			return mcpError("person_id is required"), nil
		}
		code, err := req.RequireString("room_code")
		if err != nil {
			return mcpError("room_code is required"), nil
		}

		room, err := deps.Rooms.TriggerRoom(ctx, code, personID)
		if err != nil {
			return mcpError(fmt.Sprintf("trigger failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Matchmaking scheduled for room %s", room.Code)), nil
	}
}

func mcpUpdateProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personID, err := req.RequireString("person_id")
		if err != nil {
			return mcpError("person_id is required"), nil
		}

		args := req.GetArguments()
		optional := func(key string) *string {
			v, ok := args[key].(string)
			if !ok {
				return nil
			}
			return &v
		}
		in := rooms.ProfileInput{
			Headline:   optional("headline"),
			Bio:        optional("bio"),
			Interests:  optional("interests"),
			LookingFor: optional("looking_for"),
		}
		if in == (rooms.ProfileInput{}) {
			return mcpError("at least one profile field is required"), nil
		}

		p, err := deps.Rooms.SaveProfile(ctx, personID, req.GetString("room_code", ""), in)
		if err != nil {
			return mcpError(fmt.Sprintf("profile update failed: %v", err)), nil
		}
		return mcpJSON(p)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
