// Package rest is a JSON client built on httpclient.
//
// Requests are resolved against a base URL, bodies are encoded with
// Body, and responses are decoded with the JSON content handler. Non-2xx
// responses return the decoded Response alongside a *StatusError:
//
//	c, _ := rest.New("https://api.example.com/v1", httpclient.DefaultConfig())
//	defer c.Close()
//
//	user, err := rest.Get[User](ctx, c, "/users/123")
//	if rest.IsNotFound(err) {
//		...
//	}
//
//	created, err := rest.Post[User](ctx, c, "users", CreateUser{Name: "Alice"})
package rest
