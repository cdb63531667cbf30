// Package main implements a mock completion server for offline
// pipeline runs. It serves OpenAI-compatible /v1/chat/completions and
// /v1/moderations responses, so a kbforge config can point every
// purpose at it and run the full pipeline without a real endpoint.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 8089
//
// Fixture files are JSON named by model ("mock-generation.json" maps
// to model "mock-generation"). The file content is returned verbatim
// as the assistant message. When no fixture matches, the server
// synthesizes a small markdown draft from the prompt, so running with
// no fixtures at all still produces structured articles.
//
// Sequential fixtures: numbered files ("mock-generation.1.json",
// "mock-generation.2.json") are returned in order per model, with the
// base "mock-generation.json" repeating once the numbers run out. This
// supports scenarios like a gap-fill rewrite differing from the first
// draft.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type moderationRequest struct {
	Input string `json:"input"`
}

// unsafeMarker in moderation input forces a flagged verdict, so the
// generation fallback path can be exercised deterministically.
const unsafeMarker = "[unsafe]"

// capturedRequest stores the key fields of an incoming request for
// test verification via /requests.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"`
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // model name to ordered fixture contents
	calls    atomic.Int64

	mu            sync.Mutex
	modelCalls    map[string]int64
	modelRequests map[string][]capturedRequest
}

func newServer(fixtures map[string][]string) *server {
	if fixtures == nil {
		fixtures = make(map[string][]string)
	}
	return &server{
		fixtures:      fixtures,
		modelCalls:    make(map[string]int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

// recordCall bumps the per-model counter and captures the request.
// Returns the zero-based call index used for fixture selection; the
// captured copy carries the one-based index for /requests filtering.
func (s *server) recordCall(model string, req chatRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.modelCalls[model]
	s.modelCalls[model] = index + 1
	s.modelRequests[model] = append(s.modelRequests[model], capturedRequest{
		Model:     model,
		Messages:  req.Messages,
		CallIndex: int(index) + 1,
		Timestamp: time.Now().UnixMilli(),
	})
	return int(index)
}

func main() {
	fixtureDir := flag.String("fixtures", os.Getenv("KBFORGE_MOCK_FIXTURES"),
		"directory containing fixture response files (optional)")
	port := flag.Int("port", 8089, "port to listen on")
	flag.Parse()

	fixtures := make(map[string][]string)
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("load fixtures from %s: %v", *fixtureDir, err)
		}
		log.Printf("loaded %d model(s) from %s", len(fixtures), *fixtureDir)
		for model, seq := range fixtures {
			log.Printf("  model %s: %d fixture(s)", model, len(seq))
		}
	} else {
		log.Printf("no fixture directory, synthesizing all responses")
	}

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/moderations", s.handleModerations)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock completion server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	log.Printf("[call %d] model=%s messages=%d", callNum, req.Model, len(req.Messages))

	callIndex := s.recordCall(req.Model, req)

	// Resolve fixture sequence: exact model name, then without the
	// "mock-" prefix, then a synthesized draft.
	seq, ok := s.fixtures[req.Model]
	if !ok {
		seq, ok = s.fixtures[strings.TrimPrefix(req.Model, "mock-")]
	}

	var content string
	if ok {
		if callIndex < len(seq) {
			content = seq[callIndex]
		} else {
			content = seq[len(seq)-1]
		}
		log.Printf("[call %d] model=%s fixture %d/%d", callNum, req.Model, callIndex+1, len(seq))
	} else {
		content = synthesizeDraft(req.Messages)
		log.Printf("[call %d] model=%s synthesized %d bytes", callNum, req.Model, len(content))
	}

	// Rough 4-chars-per-token estimate, prompt side from the request.
	promptChars := 0
	for _, m := range req.Messages {
		promptChars += len(m.Content)
	}
	usage := chatUsage{
		PromptTokens:     promptChars / 4,
		CompletionTokens: len(content) / 4,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	resp := chatResponse{
		ID:      fmt.Sprintf("mockcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: usage,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleModerations answers the moderation probe the generate stage
// sends per article. Everything is clean unless the input carries the
// unsafe marker.
func (s *server) handleModerations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req moderationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	flagged := strings.Contains(req.Input, unsafeMarker)
	categories := map[string]bool{}
	if flagged {
		categories["test/forced"] = true
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"results": []map[string]any{
			{"flagged": flagged, "categories": categories},
		},
	})
}

// synthesizeDraft builds a deterministic markdown draft from the last
// user message. The draft carries section headings, which downstream
// consumers require of generated articles.
func synthesizeDraft(messages []chatMessage) string {
	prompt := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			prompt = messages[i].Content
			break
		}
	}

	topic := "the requested topic"
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 60 {
				line = line[:60]
			}
			topic = line
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This draft responds to %q with placeholder prose for offline runs.\n\n", topic)
	b.WriteString("## Overview\n\n")
	b.WriteString("The mock server produced this section so the pipeline can run without a real completion endpoint. ")
	b.WriteString("It carries enough sentences to pass structural checks while staying recognizably synthetic.\n\n")
	b.WriteString("## Details\n\n")
	b.WriteString("Replace this output with fixture files when a scenario needs specific wording. ")
	b.WriteString("Each fixture file is returned verbatim for its model, in numbered order when sequences exist.\n")
	return b.String()
}

// handleModels returns the list of configured fixture models.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, count := range s.modelCalls {
		callsByModel[model] = count
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Optional query params: model (filter by model name) and call
// (1-indexed call filter).
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")

	// An absent or unparseable call param means no call filtering.
	callIdx := 0
	if n, err := strconv.Atoi(r.URL.Query().Get("call")); err == nil {
		callIdx = n
	}

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		if callIdx > 0 {
			for _, req := range reqs {
				if req.CallIndex == callIdx {
					result[model] = append(result[model], req)
				}
			}
			continue
		}
		result[model] = reqs
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// numberedFileRe matches files like "mock-generation.1.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir and returns a map of
// model→content sequence. For each model, numbered files come first in
// numeric order, then the base file as a repeating fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read fixture %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("fixture %s is not valid JSON", path)
		}

		if m := numberedFileRe.FindStringSubmatch(name); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if numberedFiles[m[1]] == nil {
				numberedFiles[m[1]] = make(map[int]string)
			}
			numberedFiles[m[1]][idx] = string(data)
			return nil
		}
		baseFiles[strings.TrimSuffix(name, ".json")] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Numbered files play in order, the base file last so it repeats.
	fixtures := make(map[string][]string)
	for model, numbered := range numberedFiles {
		indices := make([]int, 0, len(numbered))
		for idx := range numbered {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], numbered[idx])
		}
	}
	for model, base := range baseFiles {
		fixtures[model] = append(fixtures[model], base)
	}

	return fixtures, nil
}
