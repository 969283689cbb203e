package intent

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, 0.5)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"greeting", "hello there", Greeting},
		{"greeting fuzzy", "helo, anyone around?", Greeting},
		{"product query", "i am looking for a silk scarf", ProductQuery},
		{"product details", "tell me about the blue dress", ProductDetails},
		{"order status", "where is my order", OrderStatus},
		{"order tracking", "can you track order 1234", OrderStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Classify(tt.text)
			if got.Intent != tt.want {
				t.Errorf("Classify(%q).Intent = %q (confidence %.2f), want %q", tt.text, got.Intent, got.Confidence, tt.want)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("Confidence = %v, want value in [0,1]", got.Confidence)
			}
		})
	}
}

func TestClassifyBelowFloorFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, 0.9)

	got := c.Classify("qwzx vbnm")
	if got.Intent != General {
		t.Errorf("Intent = %q, want %q", got.Intent, General)
	}
	if got.Confidence >= 0.9 {
		t.Errorf("Confidence = %v, want below the floor", got.Confidence)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, 0.3)

	first := c.Classify("do you have delivery details")
	for i := 0; i < 10; i++ {
		got := c.Classify("do you have delivery details")
		if got != first {
			t.Fatalf("run %d: Classify = %+v, first run = %+v", i, got, first)
		}
	}
}

func TestClassifyTieBreaksByMatchedKeywords(t *testing.T) {
	t.Parallel()

	categories := []Category{
		{Name: "beta", Keywords: []string{"ship"}},
		{Name: "alpha", Keywords: []string{"ship", "deliver"}},
	}
	c := NewClassifier(categories, 0.1)

	// Both score identically on fuzzy "ship"; alpha also matches
	// "deliver" and must win regardless of declaration order.
	got := c.Classify("ship and deliver")
	if got.Intent != "alpha" {
		t.Errorf("Intent = %q, want %q (more matched keywords)", got.Intent, "alpha")
	}
}

func TestClassifyTieBreaksLexically(t *testing.T) {
	t.Parallel()

	categories := []Category{
		{Name: "zeta", Keywords: []string{"refund"}},
		{Name: "alpha", Keywords: []string{"refund"}},
	}
	c := NewClassifier(categories, 0.1)

	got := c.Classify("i want a refund")
	if got.Intent != "alpha" {
		t.Errorf("Intent = %q, want %q (lexically smaller name)", got.Intent, "alpha")
	}
}

func TestPartialSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text    string
		keyword string
		want    float64
	}{
		{"hello world", "hello", 1.0},
		{"say helo to them", "hello", 0.6},
		{"hello", "hello world", 5.0 / 11.0},
		{"", "hello", 0},
	}
	for _, tt := range tests {
		got := partialSimilarity(tt.text, tt.keyword)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("partialSimilarity(%q, %q) = %v, want %v", tt.text, tt.keyword, got, tt.want)
		}
	}
}

func TestEscalationMatcher(t *testing.T) {
	t.Parallel()

	m := NewEscalationMatcher([]string{"agent", "speak to a person", "Human"})

	tests := []struct {
		text string
		want bool
	}{
		{"I want to talk to an agent", true},
		{"can i speak to a person please", true},
		{"HUMAN please", true},
		{"the reagent was delivered", false},
		{"where is my order", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.text); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
