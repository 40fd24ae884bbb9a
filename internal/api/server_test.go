package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"meal-plan-assistant/internal/app"
	"meal-plan-assistant/internal/assistant"
	"meal-plan-assistant/internal/planapi"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
	"meal-plan-assistant/internal/session"
	"meal-plan-assistant/internal/swap"
)

// --- Mocks ---

type memoryStore struct {
	mu    sync.Mutex
	plans map[string]planner.DayPlan
}

func (s *memoryStore) Load(ctx context.Context, owner, date string) (planner.DayPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plans[owner+"/"+date]; ok {
		return p.Clone(), nil
	}
	return planner.NewDayPlan(owner, date), nil
}

func (s *memoryStore) Commit(ctx context.Context, plan planner.DayPlan) (planner.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan.Version++
	s.plans[plan.Owner+"/"+plan.Date] = plan.Clone()
	return planner.CommitResult{Success: true, Data: plan}, nil
}

func (s *memoryStore) GetByPlanID(ctx context.Context, planID string) (*planner.DayPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.PlanID == planID {
			c := p.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

type scriptedConversation struct {
	reply string
}

func (c *scriptedConversation) Converse(ctx context.Context, owner, text string, snap assistant.Snapshot) (assistant.Reply, error) {
	if c.reply == "" {
		return assistant.Reply{}, errors.New("model unavailable")
	}
	return assistant.Reply{Text: c.reply}, nil
}

// categoryRanker offers one option per requested category, and none without.
type categoryRanker struct{}

func (categoryRanker) FetchOptions(ctx context.Context, q swap.Query) ([]swap.Option, error) {
	var opts []swap.Option
	for _, c := range q.Filters.Categories {
		opts = append(opts, swap.Option{
			Label: c,
			Items: []planner.PlanItem{{Food: planner.FoodRef{ID: strings.ToLower(c), Name: c}, Quantity: 1, Unit: "unit"}},
		})
	}
	return opts, nil
}

// --- Helpers ---

const testKey = "k:00112233445566778899aabbccddeeff"

func newTestServer() (*Server, *scriptedConversation) {
	item := func(id, name string) planner.PlanItem {
		return planner.PlanItem{ID: id, Food: planner.FoodRef{ID: strings.ToLower(name), Name: name}, Quantity: 1, Unit: "unit"}
	}
	store := &memoryStore{plans: map[string]planner.DayPlan{
		"u1/2024-05-01": {
			PlanID: "plan_1", Owner: "u1", Date: "2024-05-01",
			Breakfast: []planner.PlanItem{item("b1", "Eggs"), item("b2", "Bread"), item("b3", "Milk")},
		},
	}}
	coord := plansync.NewCoordinator(store)
	provider := swap.NewProvider(categoryRanker{}, coord, session.NewMemoryStore(time.Hour))
	conv := &scriptedConversation{}
	a := app.NewApp(coord, provider, app.WithAssistant(conv), app.WithPlanLocator(store))
	return NewServer(a, testKey), conv
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

func breakfastNames(t *testing.T, plan any) string {
	t.Helper()
	var names []string
	for _, it := range plan.(map[string]any)["breakfast"].([]any) {
		names = append(names, it.(map[string]any)["food"].(map[string]any)["name"].(string))
	}
	return strings.Join(names, ",")
}

// --- Tests ---

func TestServer(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		s, _ := newTestServer()
		rr, body := do(t, s.Handler(), http.MethodGet, "/health", "")
		if rr.Code != http.StatusOK || body["ok"] != true {
			t.Errorf("Unexpected health response: %d %v", rr.Code, body)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("Expected a request id header")
		}
	})

	t.Run("GetPlan", func(t *testing.T) {
		s, _ := newTestServer()
		rr, body := do(t, s.Handler(), http.MethodGet, "/api/plans/u1/2024-05-01", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		if got := breakfastNames(t, body); got != "Eggs,Bread,Milk" {
			t.Errorf("Expected Eggs,Bread,Milk, got %s", got)
		}

		rr, body = do(t, s.Handler(), http.MethodGet, "/api/plans/u1/tomorrow", "")
		if rr.Code != http.StatusBadRequest || body["code"] != "INVALID_REQUEST" {
			t.Errorf("Expected 400 for invalid date, got %d %v", rr.Code, body)
		}
	})

	t.Run("DragAndUndo", func(t *testing.T) {
		s, _ := newTestServer()
		h := s.Handler()
		rr, body := do(t, h, http.MethodPost, "/api/plans/u1/2024-05-01/drag",
			`{"source":{"meal_type":"breakfast","item_id":"b1"},"target":{"meal_type":"breakfast","item_id":"b3"},"edge":"bottom"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %v", rr.Code, body)
		}
		plan := body["plans"].(map[string]any)["2024-05-01"]
		if got := breakfastNames(t, plan); got != "Bread,Milk,Eggs" {
			t.Errorf("Expected Bread,Milk,Eggs, got %s", got)
		}

		rr, body = do(t, h, http.MethodGet, "/api/undo?owner=u1", "")
		if entries := body["entries"].([]any); rr.Code != http.StatusOK || len(entries) != 1 {
			t.Errorf("Expected one history entry, got %d %v", rr.Code, body)
		}

		rr, _ = do(t, h, http.MethodPost, "/api/undo", `{"owner":"u1"}`)
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 from undo, got %d", rr.Code)
		}
		_, body = do(t, h, http.MethodGet, "/api/plans/u1/2024-05-01", "")
		if got := breakfastNames(t, body); got != "Eggs,Bread,Milk" {
			t.Errorf("Expected original order after undo, got %s", got)
		}

		rr, body = do(t, h, http.MethodPost, "/api/undo", `{"owner":"u1"}`)
		if rr.Code != http.StatusConflict || body["error"] != "There's nothing to undo." {
			t.Errorf("Expected 409 nothing to undo, got %d %v", rr.Code, body)
		}
	})

	t.Run("DragInvalidEvent", func(t *testing.T) {
		s, _ := newTestServer()
		rr, _ := do(t, s.Handler(), http.MethodPost, "/api/plans/u1/2024-05-01/drag",
			`{"source":{"meal_type":"brunch","item_id":"b1"},"target":{"meal_type":"breakfast"}}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	t.Run("Chat", func(t *testing.T) {
		s, conv := newTestServer()
		conv.reply = `{"type":"swap","mealType":"breakfast","indexA":1,"indexB":2}`
		rr, body := do(t, s.Handler(), http.MethodPost, "/api/chat", `{"owner":"u1","date":"2024-05-01","text":"swap the first two"}`)
		if rr.Code != http.StatusOK || body["text"] != "Swapped Eggs and Bread in breakfast" {
			t.Errorf("Unexpected chat response: %d %v", rr.Code, body)
		}

		conv.reply = ""
		rr, _ = do(t, s.Handler(), http.MethodPost, "/api/chat", `{"owner":"u1","date":"2024-05-01","text":"hi"}`)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 when the assistant fails, got %d", rr.Code)
		}

		rr, _ = do(t, s.Handler(), http.MethodPost, "/api/chat", `{"owner":"u1"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 without text, got %d", rr.Code)
		}
	})

	t.Run("SelectWithoutPending", func(t *testing.T) {
		s, _ := newTestServer()
		rr, body := do(t, s.Handler(), http.MethodPost, "/api/swaps/select", `{"owner":"u1","date":"2024-05-01","option":1}`)
		if rr.Code != http.StatusUnprocessableEntity || body["declined"] != true {
			t.Errorf("Expected declined selection, got %d %v", rr.Code, body)
		}
	})

	t.Run("ChangeFiltersAndDiscard", func(t *testing.T) {
		s, conv := newTestServer()
		h := s.Handler()

		rr, _ := do(t, h, http.MethodPost, "/api/swaps/filters", `{"owner":"u1","filters":{"categories":["Bagel"]}}`)
		if rr.Code != http.StatusConflict {
			t.Errorf("Expected 409 without a pending swap, got %d", rr.Code)
		}

		conv.reply = `{"type":"replace_food","mealType":"breakfast","index":2,"categories":["Toast"]}`
		rr, body := do(t, h, http.MethodPost, "/api/chat", `{"owner":"u1","date":"2024-05-01","text":"replace the bread"}`)
		if rr.Code != http.StatusOK || len(body["options"].([]any)) != 1 {
			t.Fatalf("Expected one option, got %d %v", rr.Code, body)
		}

		rr, body = do(t, h, http.MethodPost, "/api/swaps/filters", `{"owner":"u1","filters":{"categories":["Bagel","Croissant"]}}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d %v", rr.Code, body)
		}
		if !strings.Contains(body["text"].(string), "replace Bread:\n1. Bagel\n2. Croissant") {
			t.Errorf("Unexpected options text %q", body["text"])
		}

		rr, _ = do(t, h, http.MethodPost, "/api/swaps/filters", `{"filters":{}}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 without owner, got %d", rr.Code)
		}

		rr, _ = do(t, h, http.MethodDelete, "/api/swaps?owner=u1", "")
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 on discard, got %d", rr.Code)
		}
		rr, _ = do(t, h, http.MethodDelete, "/api/swaps?owner=u1", "")
		if rr.Code != http.StatusConflict {
			t.Errorf("Expected 409 on a second discard, got %d", rr.Code)
		}
		rr, _ = do(t, h, http.MethodDelete, "/api/swaps", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 without owner, got %d", rr.Code)
		}

		rr, body = do(t, h, http.MethodPost, "/api/swaps/select", `{"owner":"u1","date":"2024-05-01","option":1}`)
		if rr.Code != http.StatusUnprocessableEntity || body["declined"] != true {
			t.Errorf("Expected selection after discard to be declined, got %d %v", rr.Code, body)
		}
	})

	t.Run("ApplySwap", func(t *testing.T) {
		s, _ := newTestServer()
		server := httptest.NewServer(s.Handler())
		defer server.Close()

		client := planapi.NewClient(server.URL, testKey)
		plan, err := client.ApplySwap(context.Background(), "plan_1", "b2",
			planner.PlanItem{Food: planner.FoodRef{ID: "toast", Name: "Toast"}, Quantity: 2, Unit: "slice"})
		if err != nil {
			t.Fatalf("ApplySwap failed: %v", err)
		}
		if plan.Breakfast[1].Food.Name != "Toast" || plan.Breakfast[1].ID != "b2" {
			t.Errorf("Unexpected item: %+v", plan.Breakfast[1])
		}

		unsigned := planapi.NewClient(server.URL, "")
		if _, err := unsigned.ApplySwap(context.Background(), "plan_1", "b2", planner.PlanItem{Food: planner.FoodRef{ID: "x"}}); err == nil || !strings.Contains(err.Error(), "401") {
			t.Errorf("Expected 401 without a token, got %v", err)
		}

		if _, err := client.ApplySwap(context.Background(), "plan_1", "missing", planner.PlanItem{Food: planner.FoodRef{ID: "x"}}); err == nil || !strings.Contains(err.Error(), "409") {
			t.Errorf("Expected 409 for a missing item, got %v", err)
		}
	})
}
