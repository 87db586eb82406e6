package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/htmlutil"
	"github.com/lox/mpawatch/internal/httputil"
	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/models"
	"go.uber.org/zap"
)

const (
	MovebankAPI             = "movebank"
	DefaultMovebankBaseURL  = "https://www.movebank.org/movebank/service"
	DefaultMovebankInterval = time.Second

	// SensorGPS is Movebank's sensor type id for GPS fixes.
	SensorGPS = "653"

	movebankTimeLayout  = "2006-01-02 15:04:05.000"
	movebankQueryLayout = "20060102150405000"
)

type MovebankClient struct {
	baseURL  string
	client   *http.Client
	limiter  *httputil.Limiter
	user     string
	password string
	logger   *zap.Logger
}

type MovebankOptions struct {
	BaseURL  string
	Client   *http.Client
	User     string
	Password string
}

// NewMovebankClient builds a client. The limiter must be the process-wide
// Movebank limiter shared by every caller.
func NewMovebankClient(limiter *httputil.Limiter, opts MovebankOptions, logger *zap.Logger) *MovebankClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultMovebankBaseURL
	}
	if opts.Client == nil {
		opts.Client = httputil.NewClient()
	}
	return &MovebankClient{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   opts.Client,
		limiter:  limiter,
		user:     opts.User,
		password: opts.Password,
		logger:   logging.OrNop(logger),
	}
}

// Individual is one tagged animal in a study.
type Individual struct {
	ID              string
	LocalIdentifier string
	TaxonName       string
}

// FindStudies returns studies whose main location lies inside bbox and
// whose data the configured account can download.
func (c *MovebankClient) FindStudies(ctx context.Context, bbox geo.BBox) ([]models.Study, error) {
	rows, err := c.directRead(ctx, url.Values{
		"entity_type":            {"study"},
		"i_have_download_access": {"true"},
	})
	if err != nil {
		return nil, err
	}

	var studies []models.Study
	for _, row := range rows {
		if !parseBool(row["i_have_download_access"]) {
			continue
		}
		lat, latErr := strconv.ParseFloat(row["main_location_lat"], 64)
		lng, lngErr := strconv.ParseFloat(row["main_location_long"], 64)
		if latErr != nil || lngErr != nil {
			continue
		}
		if !bbox.Contains(models.LatLng{Lat: lat, Lng: lng}) {
			continue
		}
		studies = append(studies, models.Study{
			ID:          row["id"],
			Name:        row["name"],
			Description: htmlutil.CleanDescription(row["study_objective"], htmlutil.MaxDescriptionLen),
			MainLat:     lat,
			MainLng:     lng,
		})
	}
	return studies, nil
}

// Individuals lists the animals tagged in a study.
func (c *MovebankClient) Individuals(ctx context.Context, studyID string) ([]Individual, error) {
	rows, err := c.directRead(ctx, url.Values{
		"entity_type": {"individual"},
		"study_id":    {studyID},
	})
	if err != nil {
		return nil, err
	}

	individuals := make([]Individual, 0, len(rows))
	for _, row := range rows {
		individuals = append(individuals, Individual{
			ID:              row["id"],
			LocalIdentifier: row["local_identifier"],
			TaxonName:       row["taxon_canonical_name"],
		})
	}
	return individuals, nil
}

// Events returns a study's location fixes for one sensor type between from
// and to. Rows without coordinates or a timestamp are dropped.
func (c *MovebankClient) Events(ctx context.Context, studyID, sensor string, from, to time.Time) ([]models.RawObservation, error) {
	v := url.Values{
		"entity_type":    {"event"},
		"study_id":       {studyID},
		"sensor_type_id": {sensor},
		"attributes":     {"individual_id,individual_local_identifier,individual_taxon_canonical_name,timestamp,location_lat,location_long"},
	}
	if !from.IsZero() {
		v.Set("timestamp_start", from.UTC().Format(movebankQueryLayout))
	}
	if !to.IsZero() {
		v.Set("timestamp_end", to.UTC().Format(movebankQueryLayout))
	}

	rows, err := c.directRead(ctx, v)
	if err != nil {
		return nil, err
	}

	events := make([]models.RawObservation, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(movebankTimeLayout, row["timestamp"])
		if err != nil {
			continue
		}
		lat, latErr := strconv.ParseFloat(row["location_lat"], 64)
		lng, lngErr := strconv.ParseFloat(row["location_long"], 64)
		if latErr != nil || lngErr != nil {
			continue
		}

		id := row["individual_local_identifier"]
		if id == "" {
			id = row["individual_id"]
		}
		events = append(events, models.RawObservation{
			IndividualID:   id,
			ScientificName: row["individual_taxon_canonical_name"],
			StudyID:        studyID,
			EventDate:      ts.Format(time.RFC3339),
			Timestamp:      ts,
			Lat:            lat,
			Lng:            lng,
			HasCoordinates: true,
		})
	}
	return events, nil
}

// directRead waits on the limiter, calls the direct-read endpoint and
// returns each CSV row keyed by header.
func (c *MovebankClient) directRead(ctx context.Context, v url.Values) ([]map[string]string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	body, err := get(ctx, c.client, MovebankAPI, c.baseURL+"/direct-read?"+v.Encode(), func(req *http.Request) {
		if c.user != "" {
			req.SetBasicAuth(c.user, c.password)
		}
	})
	if err != nil {
		return nil, err
	}
	return parseCSV(body)
}

func parseCSV(body []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read csv header: %w", MovebankAPI, err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("%s: read csv: %w", MovebankAPI, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[strings.TrimSpace(name)] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// DefaultMaxStudies caps how many studies one region fetch reads events from.
const DefaultMaxStudies = 5

// FetchRegion discovers studies inside bbox and collects their GPS fixes.
// A study whose events cannot be read is skipped and leaves the result
// incomplete. PagesAttempted counts upstream requests.
func (c *MovebankClient) FetchRegion(ctx context.Context, bbox geo.BBox, from, to time.Time, maxStudies int) (FetchResult[models.RawObservation], []models.Study) {
	var result FetchResult[models.RawObservation]
	if maxStudies <= 0 {
		maxStudies = DefaultMaxStudies
	}

	result.PagesAttempted++
	studies, err := c.FindStudies(ctx, bbox)
	if err != nil {
		c.logger.Warn("study discovery failed", zap.String("api", MovebankAPI), zap.Error(err))
		result.Err = err
		return result, nil
	}

	result.Complete = true
	if len(studies) > maxStudies {
		studies = studies[:maxStudies]
		result.Complete = false
	}

	used := make([]models.Study, 0, len(studies))
	for _, s := range studies {
		if ctx.Err() != nil {
			result.Complete = false
			result.Err = ctx.Err()
			break
		}

		result.PagesAttempted++
		events, err := c.Events(ctx, s.ID, SensorGPS, from, to)
		if err != nil {
			c.logger.Warn("skipping study",
				zap.String("api", MovebankAPI),
				zap.String("study", s.ID),
				zap.Error(err))
			result.Complete = false
			result.Err = err
			continue
		}
		if needsIndividuals(events) {
			result.PagesAttempted++
			c.attachIndividuals(ctx, s.ID, events)
		}
		result.Records = append(result.Records, events...)
		used = append(used, s)
	}
	return result, used
}

func needsIndividuals(events []models.RawObservation) bool {
	for _, e := range events {
		if e.ScientificName == "" {
			return true
		}
	}
	return false
}

// attachIndividuals fills taxon names and local identifiers from the study's
// individual table, for studies whose event rows lack them. A failed lookup
// leaves the events untouched.
func (c *MovebankClient) attachIndividuals(ctx context.Context, studyID string, events []models.RawObservation) {
	individuals, err := c.Individuals(ctx, studyID)
	if err != nil {
		c.logger.Warn("individual lookup failed",
			zap.String("api", MovebankAPI),
			zap.String("study", studyID),
			zap.Error(err))
		return
	}

	byID := make(map[string]Individual, len(individuals))
	for _, ind := range individuals {
		byID[ind.ID] = ind
	}
	for i := range events {
		ind, ok := byID[events[i].IndividualID]
		if !ok {
			continue
		}
		if ind.LocalIdentifier != "" {
			events[i].IndividualID = ind.LocalIdentifier
		}
		if events[i].ScientificName == "" {
			events[i].ScientificName = ind.TaxonName
		}
	}
}
