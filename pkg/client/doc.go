/*
Package client provides the Go client for the rollout HTTP API. The rollout
CLI uses it for every command that talks to a running server.

	c, err := client.NewClient("127.0.0.1:8080", client.WithToken(token))
	if err != nil {
		return err
	}
	defer c.Close()

	phase, err := c.Advance(ctx)
	if client.IsConflict(err) {
		// refused: err lists every failed readiness gate
	}

Non-2xx responses are returned as *APIError carrying the server's message,
the refusal reasons and, for refused advances, the verdicts the decision was
based on.
*/
package client
