package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// testState is a typed state used to exercise the JSON round trip of the SQL
// stores.
type testState struct {
	Email    string   `json:"email"`
	Category string   `json:"category"`
	Steps    int      `json:"steps"`
	Research []string `json:"research,omitempty"`
}

// runStoreContract exercises the behavior every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store[testState]) {
	ctx := context.Background()

	t.Run("save and load latest", func(t *testing.T) {
		st := newStore(t)
		if err := st.SaveStep(ctx, "run-1", 1, "categorize_email", testState{Email: "hi", Category: "price_enquiry", Steps: 1}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}
		if err := st.SaveStep(ctx, "run-1", 2, "draft_email_writer", testState{Email: "hi", Category: "price_enquiry", Steps: 2}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}

		state, step, err := st.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if step != 2 || state.Steps != 2 || state.Category != "price_enquiry" {
			t.Errorf("LoadLatest = (%+v, %d)", state, step)
		}
	})

	t.Run("missing run", func(t *testing.T) {
		st := newStore(t)
		if _, _, err := st.LoadLatest(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadLatest error = %v, want ErrNotFound", err)
		}
		if _, err := st.LoadSteps(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadSteps error = %v, want ErrNotFound", err)
		}
	})

	t.Run("steps are ordered and replaced", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "run-2", 3, "c", testState{Steps: 3})
		_ = st.SaveStep(ctx, "run-2", 1, "a", testState{Steps: 1})
		_ = st.SaveStep(ctx, "run-2", 2, "b", testState{Steps: 2, Research: []string{"q\n\na"}})
		_ = st.SaveStep(ctx, "run-2", 2, "b2", testState{Steps: 2})

		steps, err := st.LoadSteps(ctx, "run-2")
		if err != nil {
			t.Fatalf("LoadSteps: %v", err)
		}
		if len(steps) != 3 {
			t.Fatalf("expected 3 steps, got %d", len(steps))
		}
		for i, rec := range steps {
			if rec.Step != i+1 {
				t.Errorf("steps[%d].Step = %d", i, rec.Step)
			}
		}
		if steps[1].NodeID != "b2" {
			t.Errorf("expected step 2 to be replaced, got node %q", steps[1].NodeID)
		}
		if steps[0].SavedAt.IsZero() {
			t.Error("expected SavedAt to be set")
		}
	})

	t.Run("runs are isolated", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "a", 1, "n", testState{Email: "a"})
		_ = st.SaveStep(ctx, "b", 1, "n", testState{Email: "b"})

		state, _, err := st.LoadLatest(ctx, "a")
		if err != nil || state.Email != "a" {
			t.Errorf("LoadLatest(a) = %+v, %v", state, err)
		}
	})

	t.Run("concurrent runs", func(t *testing.T) {
		st := newStore(t)
		var wg sync.WaitGroup
		for r := 0; r < 5; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				runID := fmt.Sprintf("conc-%d", r)
				for step := 1; step <= 4; step++ {
					if err := st.SaveStep(ctx, runID, step, "n", testState{Steps: step}); err != nil {
						t.Errorf("SaveStep(%s, %d): %v", runID, step, err)
					}
				}
			}(r)
		}
		wg.Wait()

		for r := 0; r < 5; r++ {
			steps, err := st.LoadSteps(ctx, fmt.Sprintf("conc-%d", r))
			if err != nil || len(steps) != 4 {
				t.Errorf("conc-%d: %d steps, err %v", r, len(steps), err)
			}
		}
	})
}
