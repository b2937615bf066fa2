// Package parser extracts structured descriptors from raw forum topic
// titles. Parsing is pure and total: malformed input yields partial or
// empty fields, never an error.
//
// Title format examples:
//
//	"The Long Walk (2025) (BluRay + Org Auds) - [1080p & 720p - x264 - (Tamil + Telugu + Hindi + Eng) - 3.3GB & 1.4GB | x264 - Tamil - 450MB]"
//	"Seetha Payanam (2026) Tamil HQ PreDVD - [1080p & 720p - x264 - 2.6GB & 1.4GB & 900MB]"
//	"Ghilli (2004) Tamil TRUE WEB-DL - [1080p & 720p - AVC HEVC - DD+5.1 - 640Kbps - 12.2GB & 3.2GB]"
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/filmvault/movie-harvester/internal/media"
)

// Lookup lists. Order matters: longer/more specific labels first, and the
// list order is the canonical ordering for quality tiers.
var (
	sourceFormats = []string{
		"TRUE WEB-DL", "WEB-DL", "BluRay", "Blu-Ray",
		"HQ PreDVD", "PreDVD", "HDCAM", "HDTV", "DVDRip",
		"WEBRip", "UHD", "CAM",
	}

	qualityLabels = []string{"4K", "2160p", "1080p", "720p", "480p", "360p"}

	codecLabels = []string{"HEVC", "x265", "x264", "AVC", "H.265", "H.264"}

	audioFormatLabels = []string{
		"DD+5.1", "DDP5.1", "DD5.1", "Atmos", "TrueHD", "DTS",
		"AAC 2.0", "AAC",
	}
)

type languageLabel struct {
	name    string
	pattern *regexp.Regexp
}

// Languages found both in category forums and inside title text.
var languageLabels = []languageLabel{
	{"Tamil", regexp.MustCompile(`(?i)\bTamil\b`)},
	{"Telugu", regexp.MustCompile(`(?i)\bTelugu\b`)},
	{"Hindi", regexp.MustCompile(`(?i)\bHindi\b`)},
	{"Malayalam", regexp.MustCompile(`(?i)\bMalayalam\b`)},
	{"Kannada", regexp.MustCompile(`(?i)\bKannada\b`)},
	{"English", regexp.MustCompile(`(?i)\bEng(?:lish)?\b`)},
}

var (
	yearMarkerRe  = regexp.MustCompile(`\s*\(\d{4}\)`)
	bracketOpenRe = regexp.MustCompile(`\s*-\s*\[`)
	bracketRe     = regexp.MustCompile(`\[[^\]]*\]`)
	parenRe       = regexp.MustCompile(`\([^)]*\)`)
	yearParenRe   = regexp.MustCompile(`^\(\d{4}\)$`)
	yearRe        = regexp.MustCompile(`\((\d{4})\)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	fileSizeRe    = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:GB|MB)`)
)

// Parse extracts a structured descriptor from a raw topic title.
// Same input always yields an identical descriptor.
func Parse(raw string) media.Descriptor {
	d := media.Descriptor{
		Title:        cleanTitle(raw),
		SourceFormat: "Unknown",
	}

	if m := yearRe.FindStringSubmatch(raw); m != nil {
		d.Year, _ = strconv.Atoi(m[1])
	}

	lower := strings.ToLower(raw)

	for _, fmtLabel := range sourceFormats {
		if strings.Contains(lower, strings.ToLower(fmtLabel)) {
			d.SourceFormat = fmtLabel
			break
		}
	}

	// Quality tiers keep the canonical label-list order, not the order of
	// appearance in the title. Download-link pairing depends on this.
	for _, q := range qualityLabels {
		if strings.Contains(lower, strings.ToLower(q)) {
			d.Qualities = append(d.Qualities, q)
		}
	}

	for _, c := range codecLabels {
		if strings.Contains(lower, strings.ToLower(c)) {
			d.Codec = c
			break
		}
	}

	for _, af := range audioFormatLabels {
		if strings.Contains(lower, strings.ToLower(af)) {
			d.AudioFormat = af
			break
		}
	}

	d.Languages = Languages(raw)

	// File sizes ARE positional: they occur in the title in the same order
	// the forum post lists the download links.
	for _, s := range fileSizeRe.FindAllString(raw, -1) {
		d.FileSizes = append(d.FileSizes, strings.TrimSpace(s))
	}

	return d
}

// Languages returns the language names found in a raw title, deduplicated,
// in the fixed label-list order.
func Languages(raw string) []string {
	var found []string
	for _, l := range languageLabels {
		if l.pattern.MatchString(raw) {
			found = append(found, l.name)
		}
	}
	return found
}

// BuildDownloadVariants pairs the i-th discovered link with the i-th
// quality tier and the i-th file-size label, falling back to "Rip" and
// "Unknown" past the end of the shorter list. Codec, audio format and
// audio languages are shared across all variants of one title.
//
// The positional pairing assumes the post lists links in the same order
// the title enumerates qualities. That ordering is not verifiable from the
// page structure, so titles with many quality tiers may mismatch.
func BuildDownloadVariants(links []string, d media.Descriptor) []media.DownloadVariant {
	audioLangs := strings.Join(d.Languages, " + ")
	variants := make([]media.DownloadVariant, 0, len(links))
	for i, link := range links {
		quality := "Rip"
		if i < len(d.Qualities) {
			quality = d.Qualities[i]
		}
		size := "Unknown"
		if i < len(d.FileSizes) {
			size = d.FileSizes[i]
		}
		variants = append(variants, media.DownloadVariant{
			Quality:        quality,
			Codec:          d.Codec,
			AudioFormat:    d.AudioFormat,
			AudioLanguages: audioLangs,
			FileSize:       size,
			Link:           link,
			SourceType:     "magnet",
		})
	}
	return variants
}

// cleanTitle takes the text before the first (YYYY) marker or "- [" block,
// then strips residual bracket blocks and non-year parentheticals.
func cleanTitle(raw string) string {
	cut := len(raw)
	if loc := yearMarkerRe.FindStringIndex(raw); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	if loc := bracketOpenRe.FindStringIndex(raw); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	name := raw[:cut]
	if cut == len(raw) {
		// Neither marker present: fall back to everything before the first
		// parenthesis.
		if i := strings.Index(raw, "("); i >= 0 {
			name = raw[:i]
		}
	}
	name = bracketRe.ReplaceAllString(name, "")
	name = parenRe.ReplaceAllStringFunc(name, func(p string) string {
		if yearParenRe.MatchString(p) {
			return p
		}
		return ""
	})
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(name, " "))
}
