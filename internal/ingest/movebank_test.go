package ingest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directReadURL = DefaultMovebankBaseURL + "/direct-read"

const studiesCSV = `id,name,main_location_lat,main_location_long,i_have_download_access,study_objective
101,Reef turtles,-18.3,147.6,true,"<p>Satellite tracking of <b>green turtles</b></p>"
102,Far away,40.0,-70.0,true,
103,Locked study,-18.2,147.7,false,
104,No location,,,true,
105,Dugong movements,-18.6,147.2,true,Coastal dugongs
`

const eventsCSV101 = `individual_id,individual_local_identifier,individual_taxon_canonical_name,timestamp,location_lat,location_long
9001,T-1,Chelonia mydas,2024-03-01 00:00:00.000,-18.30,147.60
9001,T-1,Chelonia mydas,2024-03-01 06:00:00.000,-18.35,147.65
9002,,Chelonia mydas,2024-03-01 01:00:00.000,-18.40,147.70
9002,,Chelonia mydas,not a time,-18.40,147.70
9002,,Chelonia mydas,2024-03-01 02:00:00.000,,147.70
`

var reefBox = geo.BBox{North: -17, South: -19, East: 148, West: 147}

func movebankResponder(t *testing.T, failStudy string) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		switch q.Get("entity_type") {
		case "study":
			return httpmock.NewStringResponse(http.StatusOK, studiesCSV), nil
		case "individual":
			return httpmock.NewStringResponse(http.StatusOK, "id,local_identifier,taxon_canonical_name\n9001,T-1,Chelonia mydas\n"), nil
		case "event":
			if q.Get("study_id") == failStudy {
				return httpmock.NewStringResponse(http.StatusForbidden, "license terms not accepted"), nil
			}
			if q.Get("study_id") == "101" {
				return httpmock.NewStringResponse(http.StatusOK, eventsCSV101), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "individual_id,timestamp,location_lat,location_long\n"), nil
		}
		return httpmock.NewStringResponse(http.StatusBadRequest, "unknown entity"), nil
	}
}

func newTestMovebank() *MovebankClient {
	return NewMovebankClient(httputil.NewLimiter("movebank-test", 0), MovebankOptions{User: "user", Password: "secret"}, nil)
}

func TestFindStudies(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, directReadURL, movebankResponder(t, ""))

	studies, err := newTestMovebank().FindStudies(context.Background(), reefBox)
	require.NoError(t, err)
	require.Len(t, studies, 2)

	assert.Equal(t, "101", studies[0].ID)
	assert.Equal(t, "Reef turtles", studies[0].Name)
	assert.Equal(t, "Satellite tracking of green turtles", studies[0].Description)
	assert.InDelta(t, -18.3, studies[0].MainLat, 1e-9)
	assert.Equal(t, "105", studies[1].ID)
}

func TestEvents(t *testing.T) {
	setupHTTPMock(t)

	var auth string
	var query map[string][]string
	httpmock.RegisterResponder(http.MethodGet, directReadURL, func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		query = req.URL.Query()
		return httpmock.NewStringResponse(http.StatusOK, eventsCSV101), nil
	})

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	events, err := newTestMovebank().Events(context.Background(), "101", SensorGPS, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.NotEmpty(t, auth)
	assert.Equal(t, []string{"20240301000000000"}, query["timestamp_start"])
	assert.Equal(t, []string{"20240401000000000"}, query["timestamp_end"])
	assert.Equal(t, []string{SensorGPS}, query["sensor_type_id"])

	assert.Equal(t, "T-1", events[0].IndividualID)
	assert.Equal(t, "Chelonia mydas", events[0].ScientificName)
	assert.Equal(t, "101", events[0].StudyID)
	assert.Equal(t, from, events[0].Timestamp)
	assert.True(t, events[0].HasCoordinates)
	assert.Equal(t, "9002", events[2].IndividualID, "falls back to the numeric id")
}

func TestIndividuals(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, directReadURL, movebankResponder(t, ""))

	individuals, err := newTestMovebank().Individuals(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, individuals, 1)
	assert.Equal(t, Individual{ID: "9001", LocalIdentifier: "T-1", TaxonName: "Chelonia mydas"}, individuals[0])
}

func TestFetchRegion(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, directReadURL, movebankResponder(t, ""))

	res, studies := newTestMovebank().FetchRegion(context.Background(), reefBox, time.Time{}, time.Time{}, 5)
	assert.True(t, res.Complete)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.PagesAttempted)
	assert.Len(t, res.Records, 3)
	assert.Len(t, studies, 2)
}

func TestFetchRegionAttachesIndividuals(t *testing.T) {
	setupHTTPMock(t)

	var individualReads int
	httpmock.RegisterResponder(http.MethodGet, directReadURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		switch q.Get("entity_type") {
		case "study":
			return httpmock.NewStringResponse(http.StatusOK, "id,name,main_location_lat,main_location_long,i_have_download_access\n101,Reef turtles,-18.3,147.6,true\n"), nil
		case "individual":
			individualReads++
			return httpmock.NewStringResponse(http.StatusOK, "id,local_identifier,taxon_canonical_name\n9001,T-1,Chelonia mydas\n9002,,Dugong dugon\n"), nil
		default:
			return httpmock.NewStringResponse(http.StatusOK, `individual_id,timestamp,location_lat,location_long
9001,2024-03-01 00:00:00.000,-18.30,147.60
9002,2024-03-01 01:00:00.000,-18.40,147.70
9003,2024-03-01 02:00:00.000,-18.50,147.80
`), nil
		}
	})

	res, studies := newTestMovebank().FetchRegion(context.Background(), reefBox, time.Time{}, time.Time{}, 5)
	require.NoError(t, res.Err)
	require.Len(t, studies, 1)
	assert.Equal(t, 1, individualReads)
	assert.Equal(t, 3, res.PagesAttempted)

	require.Len(t, res.Records, 3)
	assert.Equal(t, "T-1", res.Records[0].IndividualID)
	assert.Equal(t, "Chelonia mydas", res.Records[0].ScientificName)
	assert.Equal(t, "9002", res.Records[1].IndividualID)
	assert.Equal(t, "Dugong dugon", res.Records[1].ScientificName)
	assert.Equal(t, "9003", res.Records[2].IndividualID)
	assert.Empty(t, res.Records[2].ScientificName)
}

func TestFetchRegionSkipsFailedStudy(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, directReadURL, movebankResponder(t, "105"))

	res, studies := newTestMovebank().FetchRegion(context.Background(), reefBox, time.Time{}, time.Time{}, 5)
	assert.False(t, res.Complete)
	assert.Error(t, res.Err)
	assert.Len(t, res.Records, 3)
	require.Len(t, studies, 1)
	assert.Equal(t, "101", studies[0].ID)
}

func TestFetchRegionStudyCap(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, directReadURL, movebankResponder(t, ""))

	res, studies := newTestMovebank().FetchRegion(context.Background(), reefBox, time.Time{}, time.Time{}, 1)
	assert.False(t, res.Complete)
	assert.NoError(t, res.Err)
	assert.Len(t, studies, 1)
}

func TestFetchRegionDiscoveryFailure(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, directReadURL, httpmock.NewStringResponder(http.StatusUnauthorized, "nope"))

	res, studies := newTestMovebank().FetchRegion(context.Background(), reefBox, time.Time{}, time.Time{}, 5)
	assert.False(t, res.Complete)
	assert.Error(t, res.Err)
	assert.Empty(t, studies)
	assert.Empty(t, res.Records)
}

func TestParseCSV(t *testing.T) {
	rows, err := parseCSV([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = parseCSV([]byte("a, b\n1,2,3\n4\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, rows[0])
	assert.Equal(t, map[string]string{"a": "4"}, rows[1])
}
