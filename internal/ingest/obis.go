package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lox/mpawatch/internal/httputil"
	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	OBISAPI             = "obis"
	DefaultOBISBaseURL  = "https://api.obis.org/v3"
	DefaultOBISInterval = 1500 * time.Millisecond
)

// OccurrenceQuery selects OBIS occurrence records.
type OccurrenceQuery struct {
	Geometry       string // WKT polygon
	StartDate      string // YYYY-MM-DD
	EndDate        string // YYYY-MM-DD
	ScientificName string
	Measurements   bool // include measurement-or-fact records
}

func (q OccurrenceQuery) values() url.Values {
	v := url.Values{}
	if q.Geometry != "" {
		v.Set("geometry", q.Geometry)
	}
	if q.StartDate != "" {
		v.Set("startdate", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("enddate", q.EndDate)
	}
	if q.ScientificName != "" {
		v.Set("scientificname", q.ScientificName)
	}
	if q.Measurements {
		v.Set("mof", "true")
	}
	return v
}

type OBISClient struct {
	baseURL string
	client  *http.Client
	limiter *httputil.Limiter
	pages   PageOptions
	logger  *zap.Logger
}

type OBISOptions struct {
	BaseURL string
	Client  *http.Client
	Pages   PageOptions
}

// NewOBISClient builds a client. The limiter must be the process-wide OBIS
// limiter shared by every caller.
func NewOBISClient(limiter *httputil.Limiter, opts OBISOptions, logger *zap.Logger) *OBISClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOBISBaseURL
	}
	if opts.Client == nil {
		opts.Client = httputil.NewClient()
	}
	return &OBISClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.Client,
		limiter: limiter,
		pages:   opts.Pages.withDefaults(),
		logger:  logging.OrNop(logger),
	}
}

// SearchOccurrences fetches one page of occurrences. It does not wait on the
// limiter; FetchOccurrences does that per page.
func (c *OBISClient) SearchOccurrences(ctx context.Context, q OccurrenceQuery, offset, limit int) ([]models.RawObservation, error) {
	v := q.values()
	v.Set("size", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(offset))

	body, err := get(ctx, c.client, OBISAPI, c.baseURL+"/occurrence?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: invalid JSON response", OBISAPI)
	}
	return ParseOccurrences(body), nil
}

// FetchOccurrences pages through every occurrence matching q within the
// page budget.
func (c *OBISClient) FetchOccurrences(ctx context.Context, q OccurrenceQuery) FetchResult[models.RawObservation] {
	return Paginate(ctx, c.limiter, c.pages, func(ctx context.Context, offset, limit int) ([]models.RawObservation, error) {
		return c.SearchOccurrences(ctx, q, offset, limit)
	}, c.logger)
}

// ParseOccurrences decodes an OBIS occurrence response. OBIS serves some
// numeric fields as strings and omits others entirely, so fields are read
// individually rather than through a fixed struct.
func ParseOccurrences(body []byte) []models.RawObservation {
	results := gjson.GetBytes(body, "results").Array()
	out := make([]models.RawObservation, 0, len(results))

	for _, r := range results {
		o := models.RawObservation{
			ID:             r.Get("id").String(),
			ScientificName: r.Get("scientificName").String(),
			VernacularName: r.Get("vernacularName").String(),
			Genus:          r.Get("genus").String(),
			Family:         r.Get("family").String(),
			EventDate:      r.Get("eventDate").String(),
			DatasetID:      r.Get("dataset_id").String(),
			Institution:    r.Get("institutionCode").String(),
			BasisOfRecord:  r.Get("basisOfRecord").String(),
		}
		if o.EventDate == "" {
			o.EventDate = eventDateFromParts(r)
		}

		lat, latOK := optFloat(r.Get("decimalLatitude"))
		lng, lngOK := optFloat(r.Get("decimalLongitude"))
		if latOK && lngOK {
			o.Lat, o.Lng = lat, lng
			o.HasCoordinates = true
		}

		if v, ok := optFloat(r.Get("individualCount")); ok {
			o.IndividualCount = &v
		}
		if v, ok := optFloat(r.Get("organismQuantity")); ok {
			o.OrganismQuantity = &v
		}

		for _, m := range r.Get("mof").Array() {
			typ := m.Get("measurementType").String()
			if typ == "" {
				continue
			}
			o.Measurements = append(o.Measurements, models.Measurement{
				Type:  typ,
				Value: m.Get("measurementValue").String(),
				Unit:  m.Get("measurementUnit").String(),
			})
		}

		out = append(out, o)
	}
	return out
}

// eventDateFromParts builds an ISO date from year/month/day when OBIS omits
// eventDate but carries the parsed components.
func eventDateFromParts(r gjson.Result) string {
	year := r.Get("date_year").Int()
	if year == 0 {
		year = r.Get("year").Int()
	}
	month := r.Get("month").Int()
	if year == 0 || month < 1 || month > 12 {
		return ""
	}
	day := r.Get("day").Int()
	if day < 1 || day > 31 {
		day = 1
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// optFloat reads a number that may arrive as a JSON number or a numeric
// string. Anything else is absent.
func optFloat(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}
