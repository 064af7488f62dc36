package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dagaz/internal/approval"
	"github.com/starford/dagaz/internal/deckservice"
	"github.com/starford/dagaz/internal/testutil"
)

func testServer(t *testing.T) (*Server, *deckservice.Service) {
	t.Helper()

	_, ws := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := deckservice.NewService(ws, db, logger, deckservice.Config{
		ApprovalSecret: []byte("mcp-test-secret"),
	})
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct call-tool test helper; invoke the handlers.
	var result *mcp.CallToolResult
	var err error
	switch name {
	case "list_decks":
		result, err = srv.listDecks(ctx, req)
	case "create_deck":
		result, err = srv.createDeck(ctx, req)
	case "inspect_deck":
		result, err = srv.inspectDeck(ctx, req)
	case "probe_deck":
		result, err = srv.probeDeck(ctx, req)
	case "deck_version":
		result, err = srv.deckVersion(ctx, req)
	case "add_text_box":
		result, err = srv.addTextBox(ctx, req)
	case "set_opacity":
		result, err = srv.setOpacity(ctx, req)
	case "replace_text":
		result, err = srv.replaceText(ctx, req)
	case "delete_slide":
		result, err = srv.deleteSlide(ctx, req)
	case "check_contrast":
		result, err = srv.checkContrast(ctx, req)
	case "deck_history":
		result, err = srv.deckHistory(ctx, req)
	case "get_operation_contract":
		result, err = srv.getOperationContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndInspectDeck(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_deck", map[string]interface{}{
		"path":   "demo.pptx",
		"slides": 2,
	})
	if r.IsError {
		t.Fatalf("create_deck: %s", resultText(r))
	}

	r = callTool(t, srv, "inspect_deck", map[string]interface{}{"path": "demo.pptx"})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("inspect_deck: %s", text)
	}
	if !strings.Contains(text, `"generation": 1`) {
		t.Errorf("inspect missing generation: %s", text)
	}
	if !strings.Contains(text, "Title Slide") {
		t.Errorf("inspect missing layout name: %s", text)
	}
}

func TestListDecksEmpty(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_decks", map[string]interface{}{})
	if resultText(r) != "no decks registered" {
		t.Errorf("list = %q", resultText(r))
	}
}

func TestAddTextBoxTool(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx"})

	r := callTool(t, srv, "add_text_box", map[string]interface{}{
		"path":        "demo.pptx",
		"slide_index": 0,
		"text":        "Quarterly Summary",
		"anchor":      "center",
		"width":       "40%",
		"height":      "1",
	})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("add_text_box: %s", text)
	}
	if !strings.Contains(text, `"shape_index": 0`) {
		t.Errorf("result missing shape index: %s", text)
	}
	if !strings.Contains(text, "re-query") {
		t.Errorf("result missing staleness warning: %s", text)
	}

	// Mixing anchor with explicit coordinates is rejected.
	r = callTool(t, srv, "add_text_box", map[string]interface{}{
		"path":        "demo.pptx",
		"slide_index": 0,
		"text":        "x",
		"anchor":      "center",
		"left":        "1",
		"width":       "2",
		"height":      "1",
	})
	if !r.IsError {
		t.Error("anchor plus left not rejected")
	}
}

func TestSetOpacityStaleGeneration(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx"})
	callTool(t, srv, "add_text_box", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "text": "a",
		"anchor": "center", "width": "2", "height": "1",
	})

	// Each service call runs in a fresh session at generation 1; an old
	// observation is rejected.
	r := callTool(t, srv, "set_opacity", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "shape_index": 0,
		"opacity": 0.5, "generation": 7,
	})
	if !r.IsError {
		t.Error("stale generation not rejected")
	}

	r = callTool(t, srv, "set_opacity", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "shape_index": 0,
		"opacity": 0.5,
	})
	if r.IsError {
		t.Fatalf("set_opacity: %s", resultText(r))
	}
}

func TestDeleteSlideRequiresToken(t *testing.T) {
	srv, svc := testServer(t)
	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx", "slides": 2})

	// approval_token is a required argument.
	r := callTool(t, srv, "delete_slide", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0,
	})
	if !r.IsError {
		t.Fatal("missing token not rejected")
	}

	// A forged token is rejected by the gate.
	r = callTool(t, srv, "delete_slide", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "approval_token": "bogus.token",
	})
	if !r.IsError {
		t.Fatal("forged token not rejected")
	}

	// Tokens are minted by the operator through the service, never by a tool.
	token, err := svc.IssueApproval([]string{approval.ScopeDeleteSlide}, 0)
	if err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "delete_slide", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "approval_token": token,
	})
	if r.IsError {
		t.Fatalf("delete_slide: %s", resultText(r))
	}
}

func TestReplaceTextTool(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx"})
	callTool(t, srv, "add_text_box", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "text": "hello world",
		"anchor": "center", "width": "3", "height": "1",
	})

	r := callTool(t, srv, "replace_text", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "old": "world", "new": "dagaz",
	})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("replace_text: %s", text)
	}
	if !strings.Contains(text, `"runs_changed": 1`) {
		t.Errorf("result = %s", text)
	}
}

func TestDeckVersionStableAcrossFormatting(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx"})
	callTool(t, srv, "add_text_box", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "text": "a",
		"anchor": "center", "width": "2", "height": "1", "fill": "4472C4",
	})

	before := resultText(callTool(t, srv, "deck_version", map[string]interface{}{"path": "demo.pptx"}))
	callTool(t, srv, "set_opacity", map[string]interface{}{
		"path": "demo.pptx", "slide_index": 0, "shape_index": 0, "opacity": 0.3,
	})
	after := resultText(callTool(t, srv, "deck_version", map[string]interface{}{"path": "demo.pptx"}))
	if before != after {
		t.Errorf("version moved on formatting-only change: %s -> %s", before, after)
	}
}

func TestCheckContrastTool(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "check_contrast", map[string]interface{}{
		"foreground": "000000",
		"background": "FFFFFF",
	})
	text := resultText(r)
	if !strings.Contains(text, `"passes_aaa": true`) {
		t.Errorf("contrast = %s", text)
	}
}

func TestDeckHistoryTool(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "deck_history", map[string]interface{}{"path": "demo.pptx"})
	if resultText(r) != "no recorded operations for demo.pptx" {
		t.Errorf("history = %q", resultText(r))
	}

	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx"})
	r = callTool(t, srv, "deck_history", map[string]interface{}{"path": "demo.pptx"})
	if !strings.Contains(resultText(r), "create_deck") {
		t.Errorf("history = %s", resultText(r))
	}
}

func TestOperationContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_operation_contract", map[string]interface{}{})
	text := resultText(r)
	for _, want := range []string{"generation", "anchor", "approval token", "opacity"} {
		if !strings.Contains(strings.ToLower(text), want) {
			t.Errorf("contract missing %q", want)
		}
	}
}

func TestProbeDeckTool(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_deck", map[string]interface{}{"path": "demo.pptx"})

	r := callTool(t, srv, "probe_deck", map[string]interface{}{"path": "demo.pptx", "deep": true})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("probe_deck: %s", text)
	}
	if !strings.Contains(text, `"deep": true`) || !strings.Contains(text, "Title and Content") {
		t.Errorf("probe = %s", text)
	}
}
