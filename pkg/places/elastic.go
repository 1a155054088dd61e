package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/olivere/elastic/v7"

	"poimap/internal/models"
	"poimap/pkg/geo"
)

// ElasticSource answers nearby searches from an Elasticsearch index whose
// documents carry a geo_point "location", a "name" and an "icon" URL.
type ElasticSource struct {
	client *elastic.Client
	index  string
	radius string
	size   int
}

type placeDocument struct {
	Name     string           `json:"name"`
	Icon     string           `json:"icon"`
	Location elastic.GeoPoint `json:"location"`
}

// NewElasticSource connects to the Elasticsearch cluster at esURL.
func NewElasticSource(esURL, index string) (*ElasticSource, error) {
	client, err := elastic.NewClient(elastic.SetURL(esURL), elastic.SetSniff(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticSource{
		client: client,
		index:  index,
		radius: DefaultRadius + "m",
		size:   20,
	}, nil
}

// PointsOfInterest runs a geo-distance query around location.
func (s *ElasticSource) PointsOfInterest(ctx context.Context, location string) ([]models.Place, error) {
	lat, lng, err := geo.ParseLatLng(location)
	if err != nil {
		return nil, err
	}

	query := elastic.NewBoolQuery().Filter(
		elastic.NewGeoDistanceQuery("location").Lat(lat).Lon(lng).Distance(s.radius),
	)
	sorter := elastic.NewGeoDistanceSort("location").
		Point(lat, lng).
		Asc().
		Unit("m").
		DistanceType("arc").
		IgnoreUnmapped(true)

	result, err := s.client.Search().
		Index(s.index).
		Query(query).
		SortBy(sorter).
		Size(s.size).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch nearby search failed: %w", err)
	}

	out := make([]models.Place, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		place, err := placeFromSource(hit.Source)
		if err != nil {
			log.Printf("Error unmarshalling hit %s: %v", hit.Id, err)
			continue
		}
		out = append(out, place)
	}
	return out, nil
}

const placesMapping = `{
	"mappings": {
		"properties": {
			"name":     {"type": "text", "fields": {"raw": {"type": "keyword"}}},
			"icon":     {"type": "keyword", "index": false},
			"location": {"type": "geo_point"}
		}
	}
}`

// EnsureIndex creates the index with a geo_point mapping if it is missing.
func (s *ElasticSource) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.IndexExists(s.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", s.index, err)
	}
	if exists {
		return nil
	}
	created, err := s.client.CreateIndex(s.index).BodyString(placesMapping).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.index, err)
	}
	if !created.Acknowledged {
		log.Printf("CreateIndex %s was not acknowledged", s.index)
	}
	log.Printf("Created places index %s", s.index)
	return nil
}

// IndexPlaces upserts places in one bulk request. Re-indexing the same place
// overwrites it. It returns the number of documents indexed.
func (s *ElasticSource) IndexPlaces(ctx context.Context, places []models.Place) (int, error) {
	if len(places) == 0 {
		return 0, nil
	}
	bulk := s.client.Bulk()
	for _, p := range places {
		req := elastic.NewBulkIndexRequest().Index(s.index).Id(documentID(p)).Doc(documentFromPlace(p))
		bulk = bulk.Add(req)
	}
	resp, err := bulk.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk index failed: %w", err)
	}
	failed := 0
	for _, item := range resp.Items {
		for _, op := range item {
			if op.Error != nil {
				failed++
				log.Printf("Failed to index place %s: %s", op.Id, op.Error.Reason)
			}
		}
	}
	return len(places) - failed, nil
}

func documentFromPlace(p models.Place) placeDocument {
	return placeDocument{
		Name:     p.Name,
		Icon:     p.Icon,
		Location: elastic.GeoPoint{Lat: p.Geometry.Location.Lat, Lon: p.Geometry.Location.Lng},
	}
}

// documentID is stable for a name at a location.
func documentID(p models.Place) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(p.Name+"@"+p.Geometry.Location.String())).String()
}

// Close stops the client's background goroutines.
func (s *ElasticSource) Close() {
	s.client.Stop()
}

func placeFromSource(src json.RawMessage) (models.Place, error) {
	var doc placeDocument
	if err := json.Unmarshal(src, &doc); err != nil {
		return models.Place{}, err
	}
	return models.Place{
		Geometry: models.Geometry{
			Location: models.Location{Lat: doc.Location.Lat, Lng: doc.Location.Lon},
		},
		Name: doc.Name,
		Icon: doc.Icon,
	}, nil
}
