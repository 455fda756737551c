// Package exporter writes pipeline artifacts.
//
// CSVWriter is the generic table writer used by the normalizer and the
// auditor. Relative paths resolve into the data layout (stats/, silver/,
// gold/, otherwise exports/).
//
// Exporter renders the merged gold feature and label tables as
//
//	exports/cpt/finset_cpt_<suffix>.jsonl   {"text": ...}
//	exports/sft/finset_sft_<suffix>.jsonl   {"Instruction", "Input", "Output"}
//	exports/txt/finset_<suffix>_preview.txt blocks separated by ---
//
// The target is the configured horizon's return in whole basis points, or
// LABEL_NA=1 when the label is unavailable.
package exporter
