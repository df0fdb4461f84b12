package state

import (
	"testing"

	"github.com/bytedance/sonic"
)

func TestAlgorithmValid(t *testing.T) {
	for _, a := range Algorithms() {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}

	for _, a := range []Algorithm{"", "bogoSort", "BubbleSort", "bubblesort"} {
		if a.Valid() {
			t.Errorf("%q should be invalid", a)
		}
	}
}

func TestDefaultState(t *testing.T) {
	st := Default()

	if st.Algorithm != BubbleSort {
		t.Errorf("Algorithm = %q, want %q", st.Algorithm, BubbleSort)
	}
	if st.CurrentStep != 0 || st.TotalSteps != 0 || st.IsPlaying {
		t.Errorf("state = %+v, want zeroed run position", st)
	}
	if st.Steps == nil || len(st.Steps) != 0 {
		t.Errorf("Steps = %#v, want empty non-nil slice", st.Steps)
	}

	input, ok := st.InputData.(map[string]any)
	if !ok {
		t.Fatalf("InputData = %#v, want map", st.InputData)
	}
	arr, ok := input["array"].([]any)
	if !ok || len(arr) != 5 {
		t.Fatalf("array = %#v, want 5 elements", input["array"])
	}
	want := []float64{5, 3, 8, 1, 2}
	for i, v := range arr {
		if v != want[i] {
			t.Errorf("array[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestDefaultStateWireShape(t *testing.T) {
	data, err := sonic.Marshal(Default())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := sonic.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"algorithm", "currentStep", "totalSteps", "isPlaying", "inputData", "steps"} {
		if _, ok := m[key]; !ok {
			t.Errorf("wire shape missing %q", key)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Default()
	orig.Steps = []Step{{State: map[string]any{"array": []any{float64(1)}}, Explanation: "swap", StepNumber: 1}}

	clone := orig.Clone()

	// Mutate the original's nested structures.
	orig.InputData.(map[string]any)["array"] = []any{float64(99)}
	orig.Steps[0].Explanation = "changed"

	cloned := clone.InputData.(map[string]any)["array"].([]any)
	if len(cloned) != 5 {
		t.Errorf("clone's array has %d elements, want 5", len(cloned))
	}
	if clone.Steps[0].Explanation != "swap" {
		t.Errorf("clone's step = %q, want %q", clone.Steps[0].Explanation, "swap")
	}
}

func TestCloneRoundTripsUnknownData(t *testing.T) {
	st := Default()
	st.InputData = map[string]any{
		"graph": map[string]any{"a": []any{"b", "c"}},
	}

	clone := st.Clone()
	graph, ok := clone.InputData.(map[string]any)["graph"].(map[string]any)
	if !ok {
		t.Fatalf("InputData = %#v", clone.InputData)
	}
	edges, ok := graph["a"].([]any)
	if !ok || len(edges) != 2 {
		t.Errorf("edges = %#v, want [b c]", graph["a"])
	}
}
