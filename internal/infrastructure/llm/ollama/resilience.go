package ollama

import (
	"context"

	"github.com/kirillkom/lessons-learned/internal/infrastructure/resilience"
)

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, "ollama_"+operation, fn, resilience.ClassifyHTTPError)
	}
	return resilience.WrapTemporaryIfNeeded("ollama "+operation, err, resilience.ClassifyHTTPError)
}
