package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// parseIDs expands a track id list such as "1,3-5" into sorted, distinct ids.
func parseIDs(s string) ([]uint16, error) {
	var ids []uint16
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseID(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseID(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("track range %q is reversed", part)
			}
		}
		for id := int(first); id <= int(last); id++ {
			ids = append(ids, uint16(id))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no track ids in %q", s)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func parseID(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("track id %q: %w", s, err)
	}
	return uint16(n), nil
}
