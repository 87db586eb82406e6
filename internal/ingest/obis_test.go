package ingest

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/lox/mpawatch/internal/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const occurrenceURL = DefaultOBISBaseURL + "/occurrence"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

const obisPage = `{
  "total": 4,
  "results": [
    {
      "id": "a1",
      "scientificName": "Chelonia mydas",
      "vernacularName": "green turtle",
      "family": "Cheloniidae",
      "eventDate": "2021-04-12",
      "decimalLatitude": -18.28,
      "decimalLongitude": 147.69,
      "individualCount": "3",
      "dataset_id": "ds-1",
      "basisOfRecord": "HumanObservation"
    },
    {
      "id": "a2",
      "scientificName": "Dugong dugon",
      "date_year": 2020,
      "month": 7,
      "decimalLatitude": "-18.5",
      "decimalLongitude": "147.1",
      "organismQuantity": 2.5,
      "mof": [
        {"measurementType": "Sea surface temperature", "measurementValue": "26.4", "measurementUnit": "degC"},
        {"measurementType": "", "measurementValue": "x"},
        {"measurementType": "pH", "measurementValue": 8.1}
      ]
    },
    {
      "id": "a3",
      "scientificName": "Acropora",
      "eventDate": "2019-01-01",
      "individualCount": "several"
    }
  ]
}`

func TestParseOccurrences(t *testing.T) {
	obs := ParseOccurrences([]byte(obisPage))
	require.Len(t, obs, 3)

	first := obs[0]
	assert.Equal(t, "a1", first.ID)
	assert.Equal(t, "Chelonia mydas", first.ScientificName)
	assert.Equal(t, "green turtle", first.VernacularName)
	assert.Equal(t, "2021-04-12", first.EventDate)
	assert.True(t, first.HasCoordinates)
	assert.InDelta(t, -18.28, first.Lat, 1e-9)
	require.NotNil(t, first.IndividualCount)
	assert.Equal(t, 3.0, *first.IndividualCount)
	assert.Equal(t, "ds-1", first.DatasetID)

	second := obs[1]
	assert.Equal(t, "2020-07-01", second.EventDate)
	assert.True(t, second.HasCoordinates)
	assert.Nil(t, second.IndividualCount)
	require.NotNil(t, second.OrganismQuantity)
	assert.Equal(t, 2.5, second.Quantity())
	require.Len(t, second.Measurements, 2)
	assert.Equal(t, "Sea surface temperature", second.Measurements[0].Type)
	assert.Equal(t, "26.4", second.Measurements[0].Value)
	assert.Equal(t, "degC", second.Measurements[0].Unit)
	assert.Equal(t, "8.1", second.Measurements[1].Value)

	third := obs[2]
	assert.False(t, third.HasCoordinates)
	assert.Nil(t, third.IndividualCount)
	assert.Equal(t, 1.0, third.Quantity())
}

func TestParseOccurrencesEmpty(t *testing.T) {
	assert.Empty(t, ParseOccurrences([]byte(`{"total":0,"results":[]}`)))
	assert.Empty(t, ParseOccurrences([]byte(`{}`)))
}

func TestSearchOccurrencesQuery(t *testing.T) {
	setupHTTPMock(t)

	var got http.Header
	var query map[string][]string
	httpmock.RegisterResponder(http.MethodGet, occurrenceURL, func(req *http.Request) (*http.Response, error) {
		got = req.Header
		query = req.URL.Query()
		return httpmock.NewStringResponse(http.StatusOK, obisPage), nil
	})

	c := NewOBISClient(httputil.NewLimiter("obis-test", 0), OBISOptions{}, nil)
	obs, err := c.SearchOccurrences(context.Background(), OccurrenceQuery{
		Geometry:     "POLYGON((1 2, 3 2, 3 4, 1 4, 1 2))",
		StartDate:    "2020-01-01",
		EndDate:      "2024-12-31",
		Measurements: true,
	}, 2000, 1000)
	require.NoError(t, err)
	assert.Len(t, obs, 3)

	assert.Equal(t, httputil.DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, []string{"POLYGON((1 2, 3 2, 3 4, 1 4, 1 2))"}, query["geometry"])
	assert.Equal(t, []string{"2020-01-01"}, query["startdate"])
	assert.Equal(t, []string{"2024-12-31"}, query["enddate"])
	assert.Equal(t, []string{"true"}, query["mof"])
	assert.Equal(t, []string{"2000"}, query["offset"])
	assert.Equal(t, []string{"1000"}, query["size"])
	assert.NotContains(t, query, "scientificname")
}

func TestSearchOccurrencesErrors(t *testing.T) {
	setupHTTPMock(t)
	c := NewOBISClient(httputil.NewLimiter("obis-test", 0), OBISOptions{}, nil)

	httpmock.RegisterResponder(http.MethodGet, occurrenceURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, "upstream down"))
	_, err := c.SearchOccurrences(context.Background(), OccurrenceQuery{}, 0, 10)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, OBISAPI, se.API)

	httpmock.RegisterResponder(http.MethodGet, occurrenceURL, httpmock.NewStringResponder(http.StatusOK, "<html>"))
	_, err = c.SearchOccurrences(context.Background(), OccurrenceQuery{}, 0, 10)
	assert.Error(t, err)
}

func TestFetchOccurrencesKeepsPartialResults(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder(http.MethodGet, occurrenceURL, func(req *http.Request) (*http.Response, error) {
		offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
		if offset >= 6 {
			return httpmock.NewStringResponse(http.StatusInternalServerError, "boom"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, obisPage), nil
	})

	c := NewOBISClient(httputil.NewLimiter("obis-test", 0), OBISOptions{Pages: PageOptions{PageSize: 3, MaxPages: 5}}, nil)
	res := c.FetchOccurrences(context.Background(), OccurrenceQuery{})

	assert.Len(t, res.Records, 6)
	assert.Equal(t, 3, res.PagesAttempted)
	assert.False(t, res.Complete)
	assert.Error(t, res.Err)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestOBISBaseURLOverride(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, "http://obis.local/v3/occurrence", httpmock.NewStringResponder(http.StatusOK, `{"results":[]}`))

	c := NewOBISClient(httputil.NewLimiter("obis-test", 0), OBISOptions{BaseURL: "http://obis.local/v3/"}, nil)
	res := c.FetchOccurrences(context.Background(), OccurrenceQuery{})
	assert.True(t, res.Complete)
	assert.Equal(t, 1, res.PagesAttempted)
}
