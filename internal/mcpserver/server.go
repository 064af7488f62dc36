// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes deck mutation tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/deckservice"
	"github.com/starford/dagaz/internal/geometry"
)

// Server wraps the MCP server with deck tools.
type Server struct {
	mcp *server.MCPServer
	svc *deckservice.Service
}

// New creates a new MCP server with all deck tools registered.
func New(svc *deckservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List all registered decks in the workspace with their version fingerprints."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("create_deck",
		mcp.WithDescription("Create a new presentation from the built-in template."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new deck (must end with .pptx)")),
		mcp.WithNumber("slides", mcp.Description("Initial slide count (default 1)")),
	), s.createDeck)

	s.mcp.AddTool(mcp.NewTool("inspect_deck",
		mcp.WithDescription("Summarize a deck: slides, shapes, geometry in inches, version fingerprint, "+
			"and the current generation. Shape and slide indices from this summary are only valid "+
			"at the reported generation; re-inspect after any structural change. Read the contract "+
			"first via the get_operation_contract tool or the dagaz://operation-contract resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
	), s.inspectDeck)

	s.mcp.AddTool(mcp.NewTool("probe_deck",
		mcp.WithDescription("Report the deck's layouts and placeholders. Deep mode resolves inherited "+
			"placeholder geometry through the layout and master chain under a time budget; on budget "+
			"exhaustion the result is partial and flagged."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithBoolean("deep", mcp.Description("Resolve placeholder inheritance (slower)")),
	), s.probeDeck)

	s.mcp.AddTool(mcp.NewTool("deck_version",
		mcp.WithDescription("Return the structural version fingerprint of a deck. The fingerprint covers "+
			"slide count, layouts, shape counts, geometry, and text; formatting-only changes do not move it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
	), s.deckVersion)

	s.mcp.AddTool(mcp.NewTool("add_text_box",
		mcp.WithDescription("Add a text box to a slide. Position accepts inches (\"1.5\"), percentages "+
			"(\"50%\"), a named anchor, or a grid cell; size accepts inches or percentages."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("slide_index", mcp.Required(), mcp.Description("Zero-based slide index")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text content")),
		mcp.WithString("width", mcp.Required(), mcp.Description("Width: inches or percentage")),
		mcp.WithString("height", mcp.Required(), mcp.Description("Height: inches or percentage")),
		mcp.WithString("left", mcp.Description("Left edge: inches or percentage")),
		mcp.WithString("top", mcp.Description("Top edge: inches or percentage")),
		mcp.WithString("anchor", mcp.Description("Named anchor: top_left, top_center, top_right, "+
			"middle_left, center, middle_right, bottom_left, bottom_center, bottom_right")),
		mcp.WithString("fill", mcp.Description("Solid fill color as RRGGBB hex")),
	), s.addTextBox)

	s.mcp.AddTool(mcp.NewTool("set_opacity",
		mcp.WithDescription("Set fill and line opacity on a shape (0.0 transparent to 1.0 opaque)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("slide_index", mcp.Required(), mcp.Description("Zero-based slide index")),
		mcp.WithNumber("shape_index", mcp.Required(), mcp.Description("Zero-based shape index")),
		mcp.WithNumber("opacity", mcp.Required(), mcp.Description("Opacity in [0.0, 1.0]")),
		mcp.WithNumber("generation", mcp.Description("Generation the indices were observed at (from inspect_deck)")),
	), s.setOpacity)

	s.mcp.AddTool(mcp.NewTool("reorder_shape",
		mcp.WithDescription("Move a shape in the paint order. Ops: bring_to_front, send_to_back, "+
			"bring_forward, send_backward. Shape indices shift; re-inspect afterwards."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("slide_index", mcp.Required(), mcp.Description("Zero-based slide index")),
		mcp.WithNumber("shape_index", mcp.Required(), mcp.Description("Zero-based shape index")),
		mcp.WithString("op", mcp.Required(), mcp.Description("Z-order operation")),
		mcp.WithNumber("generation", mcp.Description("Generation the indices were observed at")),
	), s.reorderShape)

	s.mcp.AddTool(mcp.NewTool("replace_text",
		mcp.WithDescription("Replace text on one slide, or on every slide when slide_index is -1. "+
			"Deck-wide replacement is destructive and requires an approval token."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("slide_index", mcp.Required(), mcp.Description("Zero-based slide index, or -1 for all slides")),
		mcp.WithString("old", mcp.Required(), mcp.Description("Text to find")),
		mcp.WithString("new", mcp.Required(), mcp.Description("Replacement text")),
		mcp.WithString("approval_token", mcp.Description("Required for deck-wide replacement")),
	), s.replaceText)

	s.mcp.AddTool(mcp.NewTool("remove_shape",
		mcp.WithDescription("Delete a shape. Destructive: requires an approval token with the "+
			"shapes:delete scope, issued by the operator."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("slide_index", mcp.Required(), mcp.Description("Zero-based slide index")),
		mcp.WithNumber("shape_index", mcp.Required(), mcp.Description("Zero-based shape index")),
		mcp.WithString("approval_token", mcp.Required(), mcp.Description("Operator-issued approval token")),
		mcp.WithNumber("generation", mcp.Description("Generation the indices were observed at")),
	), s.removeShape)

	s.mcp.AddTool(mcp.NewTool("delete_slide",
		mcp.WithDescription("Delete a slide and its package parts. Destructive: requires an approval "+
			"token with the slides:delete scope, issued by the operator."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("slide_index", mcp.Required(), mcp.Description("Zero-based slide index")),
		mcp.WithString("approval_token", mcp.Required(), mcp.Description("Operator-issued approval token")),
		mcp.WithNumber("generation", mcp.Description("Generation the index was observed at")),
	), s.deleteSlide)

	s.mcp.AddTool(mcp.NewTool("check_contrast",
		mcp.WithDescription("Compute the WCAG contrast ratio between two colors and report AA/AAA compliance."),
		mcp.WithString("foreground", mcp.Required(), mcp.Description("Foreground color as RRGGBB hex")),
		mcp.WithString("background", mcp.Required(), mcp.Description("Background color as RRGGBB hex")),
	), s.checkContrast)

	s.mcp.AddTool(mcp.NewTool("deck_history",
		mcp.WithDescription("List recorded operations for a deck, newest first, with version "+
			"fingerprints before and after each one."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the deck")),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 50)")),
	), s.deckHistory)

	s.mcp.AddTool(mcp.NewTool("get_operation_contract",
		mcp.WithDescription("Returns the deck operation contract: geometry forms, index staleness "+
			"rules, opacity semantics, and approval requirements. Call this before mutating decks."),
	), s.getOperationContract)

	// Resource: operation contract.
	s.mcp.AddResource(
		mcp.NewResource("dagaz://operation-contract", "Deck Operation Contract",
			mcp.WithResourceDescription("Rules every deck mutation must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readOperationContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listDecks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.ListDecks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no decks registered"), nil
	}
	return jsonResult(rows), nil
}

func (s *Server) createDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slides := req.GetInt("slides", 1)
	res, err := s.svc.CreateDeck(ctx, path, slides)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) inspectDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Inspect(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) probeDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Probe(ctx, path, req.GetBool("deep", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) deckVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Version(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(v), nil
}

func (s *Server) addTextBox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slideIndex, err := req.RequireInt("slide_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	width, err := req.RequireString("width")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	height, err := req.RequireString("height")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pos := geometry.Position{
		Left:   req.GetString("left", ""),
		Top:    req.GetString("top", ""),
		Anchor: req.GetString("anchor", ""),
	}
	size := geometry.Size{Width: width, Height: height}

	res, err := s.svc.AddTextBox(ctx, path, slideIndex, pos, size, text, req.GetString("fill", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) setOpacity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slideIndex, err := req.RequireInt("slide_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	shapeIndex, err := req.RequireInt("shape_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opacity, err := req.RequireFloat("opacity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SetOpacity(ctx, path, slideIndex, shapeIndex, uint64(req.GetInt("generation", 0)), opacity)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) reorderShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slideIndex, err := req.RequireInt("slide_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	shapeIndex, err := req.RequireInt("shape_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ReorderShape(ctx, path, slideIndex, shapeIndex,
		uint64(req.GetInt("generation", 0)), deck.ZOrderOp(op))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) replaceText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slideIndex, err := req.RequireInt("slide_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	old, err := req.RequireString("old")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	new, err := req.RequireString("new")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ReplaceText(ctx, path, slideIndex, old, new, req.GetString("approval_token", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) removeShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slideIndex, err := req.RequireInt("slide_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	shapeIndex, err := req.RequireInt("shape_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := req.RequireString("approval_token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.RemoveShape(ctx, path, slideIndex, shapeIndex,
		uint64(req.GetInt("generation", 0)), token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) deleteSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slideIndex, err := req.RequireInt("slide_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := req.RequireString("approval_token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.DeleteSlide(ctx, path, slideIndex,
		uint64(req.GetInt("generation", 0)), token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) checkContrast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fg, err := req.RequireString("foreground")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bg, err := req.RequireString("background")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.CheckContrast(fg, bg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) deckHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.svc.History(ctx, path, req.GetInt("limit", 50))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no recorded operations for %s", path)), nil
	}
	return jsonResult(entries), nil
}

func (s *Server) getOperationContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OperationContract), nil
}

func (s *Server) readOperationContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dagaz://operation-contract",
			MIMEType: "text/markdown",
			Text:     OperationContract,
		},
	}, nil
}
