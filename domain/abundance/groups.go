package abundance

import (
	"fmt"
	"regexp"
	"sort"

	"proteodiff/domain/core"
)

// DefaultGroupPattern strips a trailing replicate number: "ctrl_1" -> "ctrl"
const DefaultGroupPattern = `^(.+?)[_.\-]?\d+$`

// GroupsFromSampleNames derives labels from sample names. The pattern's
// first capture group (or the group named "group") is the label. Samples
// that do not match are reported as a design error.
func GroupsFromSampleNames(samples []string, pattern string) (GroupAssignment, error) {
	if pattern == "" {
		pattern = DefaultGroupPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: group pattern: %v", core.ErrDesign, err)
	}
	idx := re.SubexpIndex("group")
	if idx < 0 {
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("%w: group pattern %q has no capture group", core.ErrDesign, pattern)
		}
		idx = 1
	}

	groups := make(GroupAssignment, len(samples))
	for _, s := range samples {
		m := re.FindStringSubmatch(s)
		if m == nil || m[idx] == "" {
			return nil, fmt.Errorf("%w: sample %q does not match group pattern %q", core.ErrUnassignedLabel, s, pattern)
		}
		groups[s] = m[idx]
	}
	return groups, nil
}

// Counts returns the number of samples per label, sorted by label
func (g GroupAssignment) Counts() []LevelCount {
	counts := make(map[string]int)
	for _, label := range g {
		counts[label]++
	}
	out := make([]LevelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LevelCount{Level: label, Samples: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// LevelCount is one group label with its sample count
type LevelCount struct {
	Level   string `json:"level"`
	Samples int    `json:"samples"`
}
