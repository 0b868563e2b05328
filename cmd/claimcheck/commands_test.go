package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/claimcheck/internal/config"
	"github.com/kalambet/claimcheck/internal/criteria"
	"github.com/kalambet/claimcheck/internal/pipeline"
	"github.com/kalambet/claimcheck/internal/synth"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useServer points the CLI commands at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) *bytes.Buffer {
	t.Helper()
	oldClient, oldColor := newAPIClient, noColor
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	noColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		newAPIClient, noColor = oldClient, oldColor
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	return &out
}

const claimJSON = `{"claim_type":"defective_product","damage_type":"structural","product_type":"sofa","delivery_date":"2024-01-10","claim_date":"2024-01-20","has_attachments":true,"contract_number":"C-1","eligible":true}`

const reportJSON = `{
  "claim_summary": {"claim_type":"defective_product","product_type":"sofa","damage_type":"structural","days_since_delivery":10,"eligible_input":true},
  "criteria": {
    "contract_verification": {"result":"Correct","explanation":"Contract number is provided (C-1).","sources":[]},
    "delivery_date": {"result":"In Warranty","recommendation":"10 days since delivery.","sources":["3.2 Deadlines"]},
    "damage_classification_validation": {"result":true,"recommendation":"Covered.","sources":[]},
    "attachments_verification": {"result":true,"recommendation":"Photos attached.","sources":[]},
    "eligibility_decision": {"isDecisionCorrect":true,"explanation":"Consistent.","sources":[]}
  },
  "final_recommendation": "Approve the claim.",
  "final_eligibility": {"isEligible":true,"justification":"All criteria pass."},
  "sources": ["3.2 Deadlines"],
  "strategy": "deep",
  "notes": ["Reduced confidence: stopped early."]
}`

func writeClaimFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claim.json")
	if err := os.WriteFile(path, []byte(claimJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"answer":"ok","sources":[]}`,
	})

	resp, err := ts.client().post(context.Background(), "/api/chat", map[string]string{"query": "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestAPIClientNoToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{"POST /api/chat": `{}`})
	c := ts.client()
	c.token = ""

	resp, err := c.post(context.Background(), "/api/chat", map[string]string{"query": "q"})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want none", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":{"message":"invalid input","type":"invalid_request_error","details":{"delivery_date":["required"]}}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	resp, err := client.post(context.Background(), "/api/evaluate", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	for _, want := range []string{"400", "invalid input", "delivery_date"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte("bad gateway"))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	resp, err := client.post(context.Background(), "/api/chat", nil)
	if err != nil {
		t.Fatal(err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil || !strings.Contains(err.Error(), "502: bad gateway") {
		t.Errorf("error = %v", err)
	}
}

func TestAskCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"answer":"Claims must be filed within 14 days.","sources":["3.2 Deadlines"]}`,
	})
	out := useServer(t, ts)

	rootCmd.SetArgs([]string{"ask", "how", "long", "to", "file?"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["query"] != "how long to file?" {
		t.Errorf("query = %q", body["query"])
	}
	if !strings.Contains(out.String(), "within 14 days") || !strings.Contains(out.String(), "- 3.2 Deadlines") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEvaluateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{"POST /api/evaluate": reportJSON})
	out := useServer(t, ts)
	defer evaluateCmd.Flags().Set("depth", "fast")

	rootCmd.SetArgs([]string{"evaluate", "--depth", "deep", writeClaimFile(t)})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ts.requests[0].Path != "/api/evaluate?depth=deep" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	if !strings.Contains(ts.requests[0].Body, `"product_type":"sofa"`) {
		t.Errorf("body = %s", ts.requests[0].Body)
	}

	got := out.String()
	for _, want := range []string{"Strategy: deep", "contract_verification", "In Warranty", "ELIGIBLE", "Approve the claim.", "Reduced confidence"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "contract_verification") > strings.Index(got, "eligibility_decision") {
		t.Error("criteria printed out of order")
	}
}

func TestEvaluateCommand_InvalidDepth(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)
	defer evaluateCmd.Flags().Set("depth", "fast")

	rootCmd.SetArgs([]string{"evaluate", "--depth", "thorough", "claim.json"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for unknown depth")
	}
	if !strings.Contains(err.Error(), "depth") {
		t.Errorf("error = %q, want it to mention depth", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("no request should be sent, got %d", len(ts.requests))
	}
}

func TestAnalyzeCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/analyze-claim": `{"next_steps":["Request photos of the damage"],"sources":["4.1 Evidence"]}`,
	})
	out := useServer(t, ts)

	rootCmd.SetArgs([]string{"analyze", writeClaimFile(t)})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Request photos of the damage") {
		t.Errorf("output = %q", out.String())
	}
}

func TestReadClaim(t *testing.T) {
	rec, err := readClaim(strings.NewReader(claimJSON), "-")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ContractNumber != "C-1" || rec.Eligible == nil || !*rec.Eligible {
		t.Errorf("record = %+v", rec)
	}

	if _, err := readClaim(strings.NewReader("{"), "-"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := readClaim(nil, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected read error")
	}
}

func TestPrintReport_Discrepancy(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	r := synth.Report{
		Strategy: "fast",
		Criteria: criteria.Set{Contract: criteria.Deterministic{Result: criteria.Incorrect}},
		FinalEligibility: criteria.Eligibility{
			IsEligible:    false,
			Justification: "Contract missing.",
		},
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	if !strings.Contains(buf.String(), "Final: NOT ELIGIBLE") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestPrintAnswer_ReducedConfidence(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	printAnswer(&buf, pipeline.Answer{Answer: "Maybe.", ReducedConfidence: true})
	if !strings.Contains(buf.String(), "reduced confidence") {
		t.Errorf("output = %s", buf.String())
	}
	if strings.Contains(buf.String(), "Sources:") {
		t.Error("no sources section expected")
	}
}

func TestIndexCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"index"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorRed, "hello"); got != "hello" {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorRed, "hello"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.LLM.APIKey = "sk-secret"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if k.Key == "llm.api_key" || strings.Contains(k.Value, "sk-secret") {
			t.Error("secret key must not be shown")
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestSetupLogging(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "bogus", ""} {
		setupLogging(level)
	}
}

func TestPrinters(t *testing.T) {
	oldDiag, oldColor := diag, noColor
	defer func() { diag, noColor = oldDiag, oldColor }()

	var buf bytes.Buffer
	diag = &buf
	noColor = true

	printSuccess("indexed %d", 3)
	printError("failed %s", "x")
	printStep("indexing")
	printStatus("Namespace", "%s", "default")

	want := "✓ indexed 3\n✗ failed x\n→ indexing\n  Namespace: default\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
