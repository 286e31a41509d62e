package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

// SetupGenkit initializes a plugin-free Genkit instance for registering
// mock models and embedders. No API keys are required.
func SetupGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("Failed to initialize Genkit")
	}
	return g
}
