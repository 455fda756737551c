// Package assembly builds the point-in-time gold feature table.
//
// Every source is joined onto the (ticker, date) base grid independently:
// daily and static sources by exact key, everything else by a backward as-of
// search over the source's effective dates. A grid row never receives a value
// whose effective date is after the row's date. A source that cannot be joined
// is logged and left out; the remaining sources still assemble.
//
// Joined feature columns are named feat_<column>_<interface>. Each joined source
// also carries effective_date_<interface>, the key date of the matched source row,
// which the leakage audit checks against the grid date.
package assembly
