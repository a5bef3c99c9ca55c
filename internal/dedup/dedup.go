package dedup

import "vea/internal/domain"

// Dedupe keeps the first entry for every link and drops later ones, preserving
// input order. Links are compared byte for byte, so trailing slashes and query
// strings make links distinct.
func Dedupe(entries []domain.Entry) []domain.Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]domain.Entry, 0, len(entries))

	for _, entry := range entries {
		if _, ok := seen[entry.Link]; ok {
			continue
		}

		seen[entry.Link] = struct{}{}
		out = append(out, entry)
	}

	return out
}
