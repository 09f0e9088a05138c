// Package delivery follows identities' inboxes and reports new message ids.
//
// # Delivery Strategies
//
//   - [LocalStrategy]: subscribes to an in-process ledger's notification
//     stream. Lowest latency; used when the client and ledger share a process.
//
//   - [PollingStrategy]: periodically lists inbox ids through any
//     [InboxSource], such as the HTTP client. Uses adaptive backoff to reduce
//     requests while an inbox is idle.
//
// Both strategies report messages already in an inbox when it is added,
// then every later arrival. Delivery is at-least-once per strategy instance;
// each strategy drops ids it has already reported.
//
// # Usage
//
//	strategy := delivery.NewPollingStrategy(delivery.Config{Source: apiClient})
//	strategy.Start(ctx, []ledger.Identity{me}, func(ctx context.Context, ev delivery.Event) error {
//	    // fetch and decrypt ev.MessageID
//	    return nil
//	})
//	defer strategy.Stop()
//
// # Thread Safety
//
// All strategy types are safe for concurrent use. Identities can be added or
// removed while the strategy is running.
package delivery
