package reconcile

import "github.com/kurihiro0119/order-import-sync/internal/domain"

// ExtractIDs collects the identifiers of every record whose status is eligible.
// The same id on several pages is counted once; page order does not matter.
func ExtractIDs(pages []domain.Page, eligible domain.StatusSet) domain.IDSet {
	ids := domain.NewIDSet()
	for _, page := range pages {
		for _, rec := range page.Records {
			if eligible.Contains(rec.Status) {
				ids.Add(rec.ID)
			}
		}
	}
	return ids
}

// CountUnknownStatuses counts distinct records whose status is outside the known enumeration
func CountUnknownStatuses(pages []domain.Page, known domain.StatusSet) int {
	if len(known) == 0 {
		return 0
	}
	unknown := domain.NewIDSet()
	for _, page := range pages {
		for _, rec := range page.Records {
			if !known.Contains(rec.Status) {
				unknown.Add(rec.ID)
			}
		}
	}
	return len(unknown)
}
