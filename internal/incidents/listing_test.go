package incidents

import (
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
)

func sampleIncidents() []*domain.Incident {
	return []*domain.Incident{
		{ID: 1, Number: "INC-000001", Description: "Disk full on db1", Status: domain.IncidentStatusClosed},
		{ID: 2, Number: "INC-000002", Description: "api latency", Status: domain.IncidentStatusInProgress},
		{ID: 3, Number: "INC-000003", Description: "Backup job failed", Status: domain.IncidentStatusOpen},
		{ID: 12, Number: "INC-000012", Description: "DNS outage", Status: domain.IncidentStatusOpen},
	}
}

func ids(items []*domain.Incident) []int64 {
	result := make([]int64, 0, len(items))
	for _, i := range items {
		result = append(result, i.ID)
	}
	return result
}

func TestApplyListQuery_DefaultIsNewestFirst(t *testing.T) {
	result := ApplyListQuery(sampleIncidents(), DefaultListQuery())
	assert.Equal(t, []int64{12, 3, 2, 1}, ids(result))
}

func TestApplyListQuery_Search(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   []int64
	}{
		{"description case insensitive", "DISK", []int64{1}},
		{"status", "in_progress", []int64{2}},
		{"id substring", "1", []int64{12, 1}},
		{"incident number", "inc-000003", []int64{3}},
		{"blank search matches all", "   ", []int64{12, 3, 2, 1}},
		{"no match", "kafka", []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultListQuery()
			q.Search = tt.search
			assert.Equal(t, tt.want, ids(ApplyListQuery(sampleIncidents(), q)))
		})
	}
}

func TestApplyListQuery_StatusFilter(t *testing.T) {
	status := domain.IncidentStatusOpen
	q := ListQuery{Status: &status, SortBy: SortByID, Order: SortAsc}

	assert.Equal(t, []int64{3, 12}, ids(ApplyListQuery(sampleIncidents(), q)))
}

func TestApplyListQuery_Sort(t *testing.T) {
	tests := []struct {
		name  string
		field SortField
		order SortOrder
		want  []int64
	}{
		{"description asc", SortByDescription, SortAsc, []int64{2, 3, 1, 12}},
		{"description desc", SortByDescription, SortDesc, []int64{12, 1, 3, 2}},
		{"status asc ties by id", SortByStatus, SortAsc, []int64{1, 2, 3, 12}},
		{"id asc", SortByID, SortAsc, []int64{1, 2, 3, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ListQuery{SortBy: tt.field, Order: tt.order}
			assert.Equal(t, tt.want, ids(ApplyListQuery(sampleIncidents(), q)))
		})
	}
}

func TestApplyListQuery_DoesNotModifyInput(t *testing.T) {
	items := sampleIncidents()
	_ = ApplyListQuery(items, DefaultListQuery())
	assert.Equal(t, []int64{1, 2, 3, 12}, ids(items))
}

func TestListQuery_Validate(t *testing.T) {
	bad := domain.IncidentStatus("PENDING")

	assert.NoError(t, DefaultListQuery().Validate())
	assert.ErrorIs(t, ListQuery{SortBy: "created", Order: SortAsc}.Validate(), ErrValidation)
	assert.ErrorIs(t, ListQuery{SortBy: SortByID, Order: "up"}.Validate(), ErrValidation)
	assert.ErrorIs(t, ListQuery{SortBy: SortByID, Order: SortAsc, Status: &bad}.Validate(), ErrValidation)
}
