package exporter

import (
	"strconv"
	"strings"

	"finset/pkg/contracts/domain"
)

// NATarget is the target text of an unavailable label
const NATarget = "LABEL_NA=1"

// formatFeature renders numeric cells with 6 decimals and anything else verbatim
func formatFeature(v string) string {
	if f, ok := domain.ParseFloat(v); ok {
		return strconv.FormatFloat(f, 'f', 6, 64)
	}
	return strings.TrimSpace(v)
}

// formatTarget renders a label as whole basis points, truncated toward zero
func formatTarget(ret, naFlag string) string {
	if strings.TrimSpace(naFlag) == "1" {
		return NATarget
	}
	v, ok := domain.ParseFloat(ret)
	if !ok {
		return NATarget
	}
	return strconv.Itoa(int(v))
}
