package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/dagaz/internal/approval"
	"github.com/starford/dagaz/internal/deckservice"
	"github.com/starford/dagaz/internal/sse"
	"github.com/starford/dagaz/internal/testutil"
)

type testServer struct {
	srv *httptest.Server
	svc *deckservice.Service
}

func newTestServer(t *testing.T, authEnabled bool, authToken string) *testServer {
	t.Helper()
	_, ws := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	broker := sse.NewBroker(0)
	t.Cleanup(broker.Close)

	svc := deckservice.NewService(ws, db, logger, deckservice.Config{
		ApprovalSecret: []byte("api-test-secret"),
		Broker:         broker,
	})
	srv := httptest.NewServer(NewRouter(svc, authEnabled, authToken, broker))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, raw
}

func (ts *testServer) createDeck(t *testing.T, path string, slides int) {
	t.Helper()
	resp, raw := ts.do(t, "POST", "/decks", CreateDeckRequest{Path: path, Slides: slides}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create deck: status %d, body %s", resp.StatusCode, raw)
	}
}

func (ts *testServer) approvalToken(t *testing.T, scopes ...string) string {
	t.Helper()
	resp, raw := ts.do(t, "POST", "/approvals", IssueApprovalRequest{Scopes: scopes}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issue approval: status %d, body %s", resp.StatusCode, raw)
	}
	var out IssueApprovalResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out.Token
}

func TestCreateAndListDecks(t *testing.T) {
	ts := newTestServer(t, false, "")

	ts.createDeck(t, "alpha.pptx", 2)

	// Duplicate path conflicts.
	resp, _ := ts.do(t, "POST", "/decks", CreateDeckRequest{Path: "alpha.pptx", Slides: 1}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create: status %d, want 409", resp.StatusCode)
	}

	resp, raw := ts.do(t, "GET", "/decks", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var list struct {
		Total int `json:"total"`
		Decks []struct {
			Path       string `json:"path"`
			SlideCount int    `json:"slide_count"`
		} `json:"decks"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Decks[0].Path != "alpha.pptx" || list.Decks[0].SlideCount != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateDeckValidation(t *testing.T) {
	ts := newTestServer(t, false, "")

	resp, _ := ts.do(t, "POST", "/decks", CreateDeckRequest{Slides: 1}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing path: status %d, want 400", resp.StatusCode)
	}

	resp, _ = ts.do(t, "POST", "/decks", CreateDeckRequest{Path: "../escape.pptx", Slides: 1}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("traversal: status %d, want 400", resp.StatusCode)
	}

	resp, _ = ts.do(t, "POST", "/decks", CreateDeckRequest{Path: "report.docx", Slides: 1}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad extension: status %d, want 400", resp.StatusCode)
	}
}

func TestInspectDeck(t *testing.T) {
	ts := newTestServer(t, false, "")
	ts.createDeck(t, "alpha.pptx", 2)

	resp, raw := ts.do(t, "GET", "/decks/alpha.pptx", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inspect: status %d", resp.StatusCode)
	}
	var res struct {
		SlideWidth  float64 `json:"slide_width"`
		SlideHeight float64 `json:"slide_height"`
		Version     string  `json:"version"`
		Slides      []struct {
			Layout string `json:"layout"`
		} `json:"slides"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Slides) != 2 || res.Version == "" {
		t.Errorf("inspect = %+v", res)
	}
	if res.Slides[0].Layout != "Title Slide" {
		t.Errorf("slide 0 layout = %q", res.Slides[0].Layout)
	}

	resp, _ = ts.do(t, "GET", "/decks/missing.pptx", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing deck: status %d, want 400", resp.StatusCode)
	}
}

func TestAddShapeAndOpacity(t *testing.T) {
	ts := newTestServer(t, false, "")
	ts.createDeck(t, "alpha.pptx", 1)

	shape := AddShapeRequest{SlideIndex: 0, Text: "hello", Fill: "4472C4"}
	shape.Position.Anchor = "center"
	shape.Size.Width = "3"
	shape.Size.Height = "1.5"
	resp, raw := ts.do(t, "POST", "/shapes/alpha.pptx", shape, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add shape: status %d, body %s", resp.StatusCode, raw)
	}
	var added struct {
		ShapeIndex int      `json:"shape_index"`
		Generation uint64   `json:"generation"`
		Warnings   []string `json:"warnings"`
	}
	if err := json.Unmarshal(raw, &added); err != nil {
		t.Fatal(err)
	}
	if len(added.Warnings) == 0 {
		t.Error("structural result carries no staleness warning")
	}

	resp, raw = ts.do(t, "POST", "/opacity/alpha.pptx", OpacityRequest{
		SlideIndex: 0, ShapeIndex: added.ShapeIndex, Opacity: 0.4,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("opacity: status %d, body %s", resp.StatusCode, raw)
	}

	// Out-of-range opacity is a client error.
	resp, _ = ts.do(t, "POST", "/opacity/alpha.pptx", OpacityRequest{
		SlideIndex: 0, ShapeIndex: added.ShapeIndex, Opacity: 1.5,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("opacity 1.5: status %d, want 400", resp.StatusCode)
	}

	// Unknown shape index is 404.
	resp, _ = ts.do(t, "POST", "/opacity/alpha.pptx", OpacityRequest{
		SlideIndex: 0, ShapeIndex: 99, Opacity: 0.4,
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown shape: status %d, want 404", resp.StatusCode)
	}
}

func TestDestructiveFlow(t *testing.T) {
	ts := newTestServer(t, false, "")
	ts.createDeck(t, "alpha.pptx", 2)

	// Without a token the delete is forbidden.
	resp, _ := ts.do(t, "DELETE", "/slides/alpha.pptx?slide=0", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("no token: status %d, want 403", resp.StatusCode)
	}

	tok := ts.approvalToken(t, approval.ScopeDeleteSlide)
	resp, raw := ts.do(t, "DELETE", "/slides/alpha.pptx?slide=0", nil, map[string]string{ApprovalHeader: tok})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d, body %s", resp.StatusCode, raw)
	}

	// The minted token is single-use.
	resp, _ = ts.do(t, "DELETE", "/slides/alpha.pptx?slide=0", nil, map[string]string{ApprovalHeader: tok})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("replay: status %d, want 403", resp.StatusCode)
	}

	// Wrong scope is forbidden too.
	tok = ts.approvalToken(t, approval.ScopeRemoveShape)
	resp, _ = ts.do(t, "DELETE", "/slides/alpha.pptx?slide=0", nil, map[string]string{ApprovalHeader: tok})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong scope: status %d, want 403", resp.StatusCode)
	}
}

func TestReplaceTextGating(t *testing.T) {
	ts := newTestServer(t, false, "")
	ts.createDeck(t, "alpha.pptx", 2)

	shape := AddShapeRequest{SlideIndex: 0, Text: "draft deck"}
	shape.Position.Anchor = "center"
	shape.Size.Width = "3"
	shape.Size.Height = "1"
	if resp, raw := ts.do(t, "POST", "/shapes/alpha.pptx", shape, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add shape: %d %s", resp.StatusCode, raw)
	}

	// Scoped to one slide: no token needed.
	resp, raw := ts.do(t, "POST", "/replace-text/alpha.pptx", ReplaceTextRequest{SlideIndex: 0, Old: "draft", New: "final"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scoped replace: %d %s", resp.StatusCode, raw)
	}

	// Deck-wide needs the token.
	resp, _ = ts.do(t, "POST", "/replace-text/alpha.pptx", ReplaceTextRequest{SlideIndex: -1, Old: "final", New: "done"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unscoped without token: status %d, want 403", resp.StatusCode)
	}
	tok := ts.approvalToken(t, approval.ScopeReplaceAllText)
	resp, raw = ts.do(t, "POST", "/replace-text/alpha.pptx", ReplaceTextRequest{SlideIndex: -1, Old: "final", New: "done"}, map[string]string{ApprovalHeader: tok})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unscoped replace: %d %s", resp.StatusCode, raw)
	}
	var res struct {
		RunsChanged int `json:"runs_changed"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if res.RunsChanged != 1 {
		t.Errorf("runs changed = %d, want 1", res.RunsChanged)
	}
}

func TestContrastEndpoint(t *testing.T) {
	ts := newTestServer(t, false, "")

	resp, raw := ts.do(t, "GET", "/contrast?fg=000000&bg=FFFFFF", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("contrast: status %d", resp.StatusCode)
	}
	var res struct {
		Ratio     float64 `json:"ratio"`
		PassesAA  bool    `json:"passes_aa"`
		PassesAAA bool    `json:"passes_aaa"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if res.Ratio < 20.9 || !res.PassesAAA {
		t.Errorf("contrast = %+v", res)
	}

	resp, _ = ts.do(t, "GET", "/contrast?fg=000000", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing bg: status %d, want 400", resp.StatusCode)
	}
	resp, _ = ts.do(t, "GET", "/contrast?fg=zzz&bg=FFFFFF", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad hex: status %d, want 400", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t, false, "")
	ts.createDeck(t, "alpha.pptx", 1)

	shape := AddShapeRequest{SlideIndex: 0, Text: "x"}
	shape.Position.Anchor = "center"
	shape.Size.Width = "2"
	shape.Size.Height = "1"
	if resp, raw := ts.do(t, "POST", "/shapes/alpha.pptx", shape, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add shape: %d %s", resp.StatusCode, raw)
	}

	resp, raw := ts.do(t, "GET", "/history/alpha.pptx?limit=5", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d", resp.StatusCode)
	}
	var res struct {
		History []struct {
			Op string `json:"op"`
		} `json:"history"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.History) < 2 {
		t.Fatalf("history = %d entries, want >= 2", len(res.History))
	}
	if res.History[0].Op != "add_text_box" {
		t.Errorf("latest op = %s, want add_text_box", res.History[0].Op)
	}
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServer(t, true, "sekrit")

	resp, _ := ts.do(t, "GET", "/decks", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: status %d, want 401", resp.StatusCode)
	}
	resp, _ = ts.do(t, "GET", "/decks", nil, map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status %d, want 401", resp.StatusCode)
	}
	resp, _ = ts.do(t, "GET", "/decks", nil, map[string]string{"Authorization": "Bearer sekrit"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token: status %d, want 200", resp.StatusCode)
	}
}

func TestProbeEndpoint(t *testing.T) {
	ts := newTestServer(t, false, "")
	ts.createDeck(t, "alpha.pptx", 1)

	for _, deep := range []bool{false, true} {
		resp, raw := ts.do(t, "GET", fmt.Sprintf("/probe/alpha.pptx?deep=%v", deep), nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("probe deep=%v: status %d", deep, resp.StatusCode)
		}
		var res struct {
			Deep         bool `json:"deep"`
			LayoutsTotal int  `json:"layouts_total"`
		}
		if err := json.Unmarshal(raw, &res); err != nil {
			t.Fatal(err)
		}
		if res.Deep != deep || res.LayoutsTotal != 2 {
			t.Errorf("probe deep=%v = %+v", deep, res)
		}
	}
}
