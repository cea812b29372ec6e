/*
Package events provides an in-memory event broker for rollout notifications.

The planner publishes phase transitions (advanced, advance refused, rolled
back, hold cleared) and the monitor publishes alerts and lifecycle changes.
Dashboards and the HTTP API subscribe to receive them without polling.

	Publisher → event queue (buffer: 100) → broadcast loop → subscribers (buffer: 50 each)

Publish never blocks. A full queue drops the event (see Dropped) and a full
subscriber buffer skips that subscriber, so a slow dashboard cannot stall a
rollback.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			if event.Type == events.EventRolledBack {
				fmt.Println("rolled back:", event.Message)
			}
		}
	}()

	broker.Publish(&events.Event{
		Type:     events.EventAlertRaised,
		Message:  "error_rate_delta 0.08 above 0.05",
		Metadata: map[string]string{"severity": "critical"},
	})
*/
package events
