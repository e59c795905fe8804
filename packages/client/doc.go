// Package client provides the pooled HTTP client used to fetch market and
// reference data.
//
// A Client is constructed with functional options, connected once, shared
// by any number of goroutines, and closed when the owning component shuts
// down:
//
//	c := client.New(
//		client.WithMaxPerHost(4),
//		client.WithRetries(2),
//		client.WithLogger(log),
//	)
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Close(ctx)
//
//	resp, err := c.Get(ctx, "https://api.example.com/v1/ticks")
//
// Connections are pooled per origin (scheme, host, port) and reused across
// requests. Transport failures that happened before any response byte are
// retried with jittered exponential backoff when the request is safe to
// repeat; every other failure surfaces immediately as a typed error from
// the httperr package.
package client
