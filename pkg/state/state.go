// Package state defines the algorithm-visualization state shared by every
// participant of a session. A SessionState is replaced wholesale on each
// update; nothing in here merges fields.
package state

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Algorithm identifies one of the visualizable algorithms.
type Algorithm string

// The fixed set of recognized algorithms.
const (
	BubbleSort Algorithm = "bubbleSort"
	MergeSort  Algorithm = "mergeSort"
	QuickSort  Algorithm = "quickSort"
	BFS        Algorithm = "bfs"
	DFS        Algorithm = "dfs"
)

// Algorithms returns the recognized set in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{BubbleSort, MergeSort, QuickSort, BFS, DFS}
}

// Valid reports whether a is a recognized algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case BubbleSort, MergeSort, QuickSort, BFS, DFS:
		return true
	}
	return false
}

// Step is a single recorded step of an algorithm run. The step state is
// opaque to the server; sorting and graph algorithms put different shapes
// in it and the server never inspects them.
type Step struct {
	State       any    `json:"state"`
	Explanation string `json:"explanation"`
	StepNumber  int    `json:"stepNumber"`
}

// SessionState is the canonical visualization state of a session.
type SessionState struct {
	Algorithm   Algorithm `json:"algorithm"`
	CurrentStep int       `json:"currentStep"`
	TotalSteps  int       `json:"totalSteps"`
	IsPlaying   bool      `json:"isPlaying"`
	InputData   any       `json:"inputData"`
	Steps       []Step    `json:"steps"`
}

// Default returns the state a freshly created session starts with:
// bubble sort over a five-element sample array, nothing generated yet.
func Default() SessionState {
	return SessionState{
		Algorithm:   BubbleSort,
		CurrentStep: 0,
		TotalSteps:  0,
		IsPlaying:   false,
		InputData:   map[string]any{"array": []any{float64(5), float64(3), float64(8), float64(1), float64(2)}},
		Steps:       []Step{},
	}
}

// Clone returns a deep copy of s. InputData and step states are opaque
// JSON-shaped values, so the copy is made through a codec round trip.
func (s SessionState) Clone() SessionState {
	data, err := sonic.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("state: clone marshal failed: %v", err))
	}
	var out SessionState
	if err := sonic.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: clone unmarshal failed: %v", err))
	}
	return out
}
