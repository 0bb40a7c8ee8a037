// Package reports renders scoped event listings into downloadable
// files. A report is built from the same listing path the requester
// would see in the UI, so role scoping carries over for free. Generated
// reports are recorded in a history table and archived to object
// storage in the background.
package reports
