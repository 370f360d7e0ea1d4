// Package topology owns the state graph shared by the learner and the tracker.
//
// Responsibilities: an arena of states indexed by stable integer IDs,
// directed transitions stored as adjacency lists of pointers into the
// arena, and deep cloning so a tracking session never aliases the
// training graph.
// Key types: Graph, State, Transition.
//
// Dependency rule: topology depends on nothing else in this module.
// Growth policy (where states appear) lives in internal/itm and the
// probability semantics live in internal/ghmm.
package topology
