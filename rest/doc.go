// Package rest provides the resilient HTTP client core shared by the typed
// SDKs in this module: a transport with bearer-token injection, constant
// interval retry and a read-through response cache, a uniform response
// envelope, and a typed error taxonomy.
//
// Basic usage:
//
//	cfg := rest.DefaultConfig().
//		WithBaseURL("https://api.example.com").
//		WithCachePrefix("example")
//	client, err := rest.NewClient(cfg)
//	if err != nil {
//		return err
//	}
//	resp, err := client.WithToken(token).Get(ctx, "/things", nil)
//	if err != nil {
//		if rest.IsNotFound(err) {
//			// handle missing entity
//		}
//		return err
//	}
//	for _, item := range resp.Items() {
//		// ...
//	}
//
// Clients are immutable after construction; WithToken, WithHeaders and
// WithoutCache return independent clones, so a base client can be shared
// and specialized per call site without locking.
package rest
