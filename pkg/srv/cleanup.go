package srv

import "context"

type funcService struct {
	start   func(ctx context.Context) error
	cleanup func() error
}

func (c *funcService) Start(ctx context.Context) error {
	if c.start != nil {
		return c.start(ctx)
	}
	return nil
}

func (c *funcService) Shutdown(ctx context.Context) error {
	if c.cleanup != nil {
		return c.cleanup()
	}
	return nil
}

// NewCleanup wraps a closer that only needs to run at shutdown.
func NewCleanup(fn func() error) Service {
	return &funcService{cleanup: fn}
}

