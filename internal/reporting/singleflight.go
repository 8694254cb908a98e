package reporting

import "context"

// buildOnce collapses concurrent builds of the same key. The build runs
// detached from the first caller's cancellation so waiters still get a result.
func (s *Service) buildOnce(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
