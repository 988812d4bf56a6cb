// Package client talks to the admin API of a running switchyard process.
//
//	c := client.New("http://localhost:8090", 10*time.Second)
//	routes, err := c.Routes(ctx)
//	info, err := c.RouteAction(ctx, "orders", "suspend")
package client
