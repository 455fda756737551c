// Package audit checks the gold tables for lookahead leakage and summarizes
// their coverage.
//
// Every column whose name contains "effective_date" is compared with the
// observation date of its row. A later effective date is a lookahead
// violation; violations are counted per column and logged at error level,
// and the audit continues with the remaining columns.
//
// Reports are written as CSV summaries, a JSON document and an Excel
// workbook under exports/stats.
package audit
