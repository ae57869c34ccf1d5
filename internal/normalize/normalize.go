// Package normalize implements C5 Normalizer: a pure, stateless
// function from a raw scraped product-name string to a structured
// product identity, grounded on
// original_source/etl/transformers/product_normalizer.py.
package normalize

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/store"
)

// Identity is the structured product identity extracted from a raw
// listing title.
type Identity struct {
	Brand     string
	Chipset   store.Chipset
	ModelName string
	VRAM      string
	IsOC      bool
}

// chipsetPatterns is evaluated in order; the RTX 4070 Ti Super and
// 4070 Super variants must be matched before the bare "RTX 4070"
// pattern or they'd never win.
var chipsetPatterns = []struct {
	pattern *regexp.Regexp
	chip    store.Chipset
}{
	{regexp.MustCompile(`(?i)RTX\s*4070\s*Ti\s*Super`), store.ChipsetRTX4070TiSuper},
	{regexp.MustCompile(`(?i)RTX\s*4070\s*Super`), store.ChipsetRTX4070Super},
	{regexp.MustCompile(`(?i)RTX\s*4070\s*Ti`), store.ChipsetRTX4070Ti},
	{regexp.MustCompile(`(?i)RTX\s*4070`), store.ChipsetRTX4070},
}

// knownBrands mirrors the curated brand list a Korean GPU listing
// title is expected to carry.
var knownBrands = []string{
	"ASUS", "MSI", "GIGABYTE", "ZOTAC", "PALIT", "GAINWARD", "EMTEK", "COLORFUL", "INNO3D", "PNY",
}

var vramPattern = regexp.MustCompile(`(?i)(\d+)\s*GB`)

var ocPattern = regexp.MustCompile(`(?i)\bOC\b|오버클럭|Overclock`)

// lineupTokens are the residual-name candidates the model_name rule
// looks for once chipset/brand/vram/oc have all been consumed.
var lineupTokens = []string{
	"TUF", "ROG Strix", "Strix", "Dual", "Ventus", "Gaming X", "Gaming OC", "Gaming",
	"Twin Edge", "Trinity", "Eagle", "Windforce", "Aero", "Suprim", "Phoenix",
}

// Normalize extracts a structured Identity from a raw listing title.
// Rules are evaluated left to right: chipset, brand, vram, is_oc,
// model_name — matching spec order rather than the brand-first order
// original_source uses (see DESIGN.md).
func Normalize(raw string) (Identity, error) {
	chip, err := matchChipset(raw)
	if err != nil {
		return Identity{}, err
	}

	brand, err := matchBrand(raw)
	if err != nil {
		return Identity{}, err
	}

	vram, err := matchVRAM(raw)
	if err != nil {
		return Identity{}, err
	}

	isOC := ocPattern.MatchString(raw)

	modelName := matchModelName(raw, chip, brand)

	return Identity{
		Brand:     brand,
		Chipset:   chip,
		ModelName: modelName,
		VRAM:      vram,
		IsOC:      isOC,
	}, nil
}

func matchChipset(raw string) (store.Chipset, error) {
	for _, cp := range chipsetPatterns {
		if cp.pattern.MatchString(raw) {
			return cp.chip, nil
		}
	}
	return "", &apperrors.NormalizationError{
		Code: apperrors.NormalizeChipsetNot4070Series, Field: "chipset", Input: raw,
	}
}

func matchBrand(raw string) (string, error) {
	upper := strings.ToUpper(raw)
	for _, b := range knownBrands {
		if strings.Contains(upper, strings.ToUpper(b)) {
			return b, nil
		}
	}
	return "", &apperrors.NormalizationError{
		Code: apperrors.NormalizeBrandMissing, Field: "brand", Input: raw,
	}
}

func matchVRAM(raw string) (string, error) {
	m := vramPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", &apperrors.NormalizationError{
			Code: apperrors.NormalizeVRAMMissing, Field: "vram", Input: raw,
		}
	}
	return m[1] + "GB", nil
}

// matchModelName returns the best-effort residual lineup token, or a
// deterministic hash of chipset+brand when no known token is present —
// the model_name column is NOT NULL and must never be empty.
func matchModelName(raw string, chip store.Chipset, brand string) string {
	upper := strings.ToUpper(raw)
	for _, tok := range lineupTokens {
		if strings.Contains(upper, strings.ToUpper(tok)) {
			return tok
		}
	}
	return fallbackModelName(chip, brand)
}

func fallbackModelName(chip store.Chipset, brand string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(chip) + "|" + brand))
	return fmt.Sprintf("unk-%x", h.Sum32())
}
