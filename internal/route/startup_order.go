package route

import (
	"sort"

	"switchyard/internal/api"
)

// DefaultStartupOrderBase is the first order assigned to routes without an
// explicit startup order.
const DefaultStartupOrderBase = 1000

// StartupOrder ties a route service to the order it is started in during a
// single start, stop or suspend batch.
type StartupOrder struct {
	Order   int
	Route   *Route
	Service *RouteService
}

// Consumer returns the route's consumer, or nil before warm-up.
func (s StartupOrder) Consumer() api.Consumer {
	return s.Route.Consumer()
}

// SortStartupOrders sorts orders ascending, or descending when reverse is
// set. Routes with equal orders keep their relative position.
func SortStartupOrders(orders []StartupOrder, reverse bool) {
	sort.SliceStable(orders, func(i, j int) bool {
		if reverse {
			return orders[i].Order > orders[j].Order
		}
		return orders[i].Order < orders[j].Order
	})
}

// RouteIDs returns the route ids of orders, in order.
func RouteIDs(orders []StartupOrder) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.Route.ID()
	}
	return ids
}
