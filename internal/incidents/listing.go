package incidents

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// SortField names a field incidents can be ordered by.
type SortField string

// Sort fields.
const (
	SortByID          SortField = "id"
	SortByDescription SortField = "description"
	SortByStatus      SortField = "status"
)

// SortOrder is the direction of a sort.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListQuery is the view state of an incident list: search term, status filter and ordering.
type ListQuery struct {
	Search string
	Status *domain.IncidentStatus
	SortBy SortField
	Order  SortOrder
}

// DefaultListQuery returns the default view: newest incidents first.
func DefaultListQuery() ListQuery {
	return ListQuery{
		SortBy: SortByID,
		Order:  SortDesc,
	}
}

// Validate checks that the sort field, order and status filter are known.
func (q ListQuery) Validate() error {
	switch q.SortBy {
	case SortByID, SortByDescription, SortByStatus:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrValidation, q.SortBy)
	}

	if q.Order != SortAsc && q.Order != SortDesc {
		return fmt.Errorf("%w: unknown sort order %q", ErrValidation, q.Order)
	}

	if q.Status != nil && !q.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *q.Status)
	}
	return nil
}

// ApplyListQuery returns the incidents matching q in the requested order.
// The input slice is not modified.
func ApplyListQuery(items []*domain.Incident, q ListQuery) []*domain.Incident {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	result := make([]*domain.Incident, 0, len(items))
	for _, incident := range items {
		if q.Status != nil && incident.Status != *q.Status {
			continue
		}
		if search != "" && !matchesSearch(incident, search) {
			continue
		}
		result = append(result, incident)
	}

	slices.SortStableFunc(result, func(a, b *domain.Incident) int {
		c := compareBy(a, b, q.SortBy)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if q.Order == SortDesc {
			return -c
		}
		return c
	})

	return result
}

func matchesSearch(incident *domain.Incident, search string) bool {
	return strings.Contains(strings.ToLower(incident.Description), search) ||
		strings.Contains(strings.ToLower(string(incident.Status)), search) ||
		strings.Contains(strconv.FormatInt(incident.ID, 10), search) ||
		strings.Contains(strings.ToLower(incident.Number), search)
}

func compareBy(a, b *domain.Incident, field SortField) int {
	switch field {
	case SortByDescription:
		return strings.Compare(strings.ToLower(a.Description), strings.ToLower(b.Description))
	case SortByStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return cmp.Compare(a.ID, b.ID)
	}
}
