// Package ratelimit coordinates outbound request pacing for LLM and
// citation providers.
//
// Each provider has its own policy: a requests-per-minute ceiling, a burst
// allowance, and a jitter range. Call sites go through two layers:
//
//   - Throttle gates request timing locally. Acquire blocks until the
//     provider's policy permits another request, inserting either a
//     steady-state spacing delay (when the burst allowance is used up) or a
//     small randomized jitter delay.
//   - Retrier reacts to rate limits the provider actually reported. It wraps
//     an operation, retries with exponential backoff on classified
//     rate-limit failures, and resets the Throttle's window so the local
//     model stops assuming capacity the provider just denied.
//
// Throttling is predictive, backoff is reactive; keeping them separate means
// the predictive path does not have to be pessimistic and the reactive path
// does not have to guess.
//
//	throttle := ratelimit.NewThrottle()
//	retrier := ratelimit.NewRetrier(throttle)
//
//	paper, err := ratelimit.Invoke(ctx, retrier, "semantic_scholar",
//	    func(ctx context.Context) (*Paper, error) {
//	        return client.SearchByDOI(ctx, doi)
//	    })
//
// Both layers are safe for concurrent use. Requests to different providers
// never block each other; requests to the same provider are serialized,
// including through their sleeps, so a burst of late arrivals cannot jump
// ahead of an earlier waiter.
package ratelimit
