package service

import (
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Release tags arrive in several shapes ("v1.2.3", "release/v1.2.6",
// "1.2"); normalization extracts the numeric core so they order correctly.
var versionRun = regexp.MustCompile(`\d+(?:\.\d+)*`)

// NormalizeVersion strips any non-numeric prefix and returns the longest
// dot-separated numeric run, right-padded with zeros to three components.
// Strings with no numeric content normalize to "0.0.0".
func NormalizeVersion(raw string) string {
	runs := versionRun.FindAllString(raw, -1)
	if len(runs) == 0 {
		return "0.0.0"
	}

	best := runs[0]
	for _, run := range runs[1:] {
		if strings.Count(run, ".") > strings.Count(best, ".") {
			best = run
		}
	}

	for strings.Count(best, ".") < 2 {
		best += ".0"
	}
	return best
}

// CompareVersions orders two version strings after normalization,
// returning -1, 0 or 1
func CompareVersions(a, b string) int {
	va := mustParse(NormalizeVersion(a))
	vb := mustParse(NormalizeVersion(b))
	return va.Compare(vb)
}

func mustParse(normalized string) *goversion.Version {
	v, err := goversion.NewVersion(normalized)
	if err != nil {
		v, _ = goversion.NewVersion("0.0.0")
	}
	return v
}
