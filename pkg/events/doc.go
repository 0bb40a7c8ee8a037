// Package events holds the event domain: the record model, the ordered
// validation pipeline that guards every write, and the role-scoped
// service and HTTP layer on top of the store.
//
// Writes flow through one pipeline (required fields, formats, the
// temporal guard, durations, the executive folder) and stop at the
// first failure. The only bypass is the evidence-only update, which is
// open to any principal who can read the event once its window has
// passed.
package events
