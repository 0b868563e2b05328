package llm

import (
	"context"
	"fmt"
	"io"
)

// ModelLister lists the model IDs an endpoint serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// EnsureReady checks that the model endpoint is reachable and reports on
// the configured models. An unreachable endpoint is an error; a model that
// is not listed only produces a warning line on w, since many compatible
// gateways do not list every routable model.
func EnsureReady(ctx context.Context, l ModelLister, chatModel, embedModel string, w io.Writer) error {
	ids, err := l.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("model endpoint is not reachable: %w", err)
	}

	available := make(map[string]bool, len(ids))
	for _, id := range ids {
		available[id] = true
	}

	models := make([]string, 0, 2)
	if chatModel != "" {
		models = append(models, chatModel)
	}
	if embedModel != "" && embedModel != chatModel {
		models = append(models, embedModel)
	}

	for _, m := range models {
		if available[m] {
			fmt.Fprintf(w, "model %s: ready\n", m)
		} else {
			fmt.Fprintf(w, "model %s: not listed by endpoint, continuing\n", m)
		}
	}
	return nil
}
