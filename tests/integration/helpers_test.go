//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/testutil"
	"github.com/stretchr/testify/require"
)

type incident struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Description  string     `json:"description"`
	ActionsTaken string     `json:"actions_taken"`
	RCA          string     `json:"rca"`
	Resolution   string     `json:"resolution"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at"`
}

type statusChange struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedAt  time.Time `json:"changed_at"`
}

func incidentPath(id int64) string {
	return fmt.Sprintf("/api/v1/incidents/%d", id)
}

// createTestIncident creates an OPEN incident and returns it.
func createTestIncident(t *testing.T, client *testutil.Client, description string) incident {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents", map[string]string{
		"description":   description,
		"actions_taken": "Paged on-call",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusCreated)

	var result struct {
		Data incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// setStatus changes the incident status and requires the request to succeed.
func setStatus(t *testing.T, client *testutil.Client, id int64, status string) incident {
	t.Helper()

	resp, err := client.POST(incidentPath(id)+"/status", map[string]string{"status": status})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)

	var result struct {
		Data incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// patchFields updates rca/resolution and requires the request to succeed.
func patchFields(t *testing.T, client *testutil.Client, id int64, fields map[string]string) incident {
	t.Helper()

	resp, err := client.PATCH(incidentPath(id), fields)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)

	var result struct {
		Data incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// requireStatus fails the test with the response body when the status differs.
func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, testutil.ReadBody(t, resp))
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()

	var result struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Error.Message
}
