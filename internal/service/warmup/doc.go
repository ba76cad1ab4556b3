// Package warmup implements the warmup controller: campaign lifecycle
// operations and the per-day plan they govern.
//
// The service layer contains all business logic for starting, pausing,
// resuming, and cancelling campaigns and for operator actions on the
// current warmup day. It depends on repository interfaces defined in this
// package and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package warmup
