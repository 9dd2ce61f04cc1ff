package graph_test

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/aretw0/baton/internal/presentation/graph"
	"github.com/aretw0/baton/pkg/domain"
)

func sample() *domain.StageGraph {
	return &domain.StageGraph{
		Artifacts: []domain.ArtifactSpec{
			{Role: "mnist-preprocess", Kind: "train-images", Bucket: "mnist-normalize", Key: "X_Train4D_normalize"},
		},
		Stages: []domain.Stage{
			{Name: "mnist-preprocess", Work: "mnist.preprocess", Outputs: []domain.ArtifactRef{{Kind: "train-images"}}, Next: "mnist-model-build"},
			{Name: "mnist-model-build", Inputs: []domain.ArtifactRef{{Role: "mnist-preprocess", Kind: "train-images"}}},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Shapes",
			contains: []string{
				"graph LR",
				"mnist_preprocess((\"mnist-preprocess <br/> mnist.preprocess\"))",
				"mnist_model_build[\"mnist-model-build\"]",
				"art_mnist_preprocess__train_images[(\"mnist-normalize/X_Train4D_normalize\")]",
			},
		},
		{
			name: "Edges",
			contains: []string{
				"mnist_preprocess --> mnist_model_build",
				"mnist_preprocess -. train-images .-> art_mnist_preprocess__train_images",
				"art_mnist_preprocess__train_images -.-> mnist_model_build",
			},
		},
		{
			name:     "No Overlay",
			excludes: []string{"classDef"},
		},
		{
			name:    "Overlay",
			overlay: &graph.Overlay{Done: []string{"mnist-preprocess", "mnist-preprocess"}, Failed: "mnist-model-build"},
			contains: []string{
				"class mnist_preprocess done;",
				"class mnist_model_build failed;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(sample(), tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(out, bad) {
					t.Errorf("expected output not to contain %q", bad)
				}
			}
			if tt.overlay != nil && strings.Count(out, "class mnist_preprocess done;") != 1 {
				t.Errorf("expected done class once, got:\n%s", out)
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	rec := &graph.Recorder{}
	hooks := rec.Hooks()
	ctx := context.Background()

	for _, e := range []domain.PhaseEvent{
		{Stage: "mnist-preprocess", Phase: domain.PhaseStart},
		{Stage: "mnist-preprocess", Phase: domain.PhaseDone},
		{Stage: "mnist-model-build", Phase: domain.PhaseFetchingInputs},
		{Stage: "mnist-model-build", Phase: domain.PhaseFailed},
	} {
		hooks.OnPhase(ctx, &e)
	}

	overlay := rec.Overlay()
	if !slices.Equal(overlay.Done, []string{"mnist-preprocess"}) {
		t.Errorf("unexpected done stages %v", overlay.Done)
	}
	if overlay.Failed != "mnist-model-build" {
		t.Errorf("unexpected failed stage %q", overlay.Failed)
	}

	out := graph.GenerateMermaid(sample(), overlay)
	for _, want := range []string{"class mnist_preprocess done;", "class mnist_model_build failed;"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}
