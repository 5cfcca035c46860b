package store

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/guregu/dynamo"

	"github.com/luki/fieldview/internal/config"
	"github.com/luki/fieldview/internal/reading"
)

// dynamoItem is one item of the sensor table: hash key deviceId, range
// key time (ISO 8601 text).
type dynamoItem struct {
	DeviceID    string   `dynamo:"deviceId,hash"`
	Time        string   `dynamo:"time,range"`
	Zeitpunkt   string   `dynamo:"zeitpunkt,omitempty"`
	Latitude    *float64 `dynamo:"latitude,omitempty"`
	Longitude   *float64 `dynamo:"longitude,omitempty"`
	Temperature *float64 `dynamo:"temperature,omitempty"`
	Humidity    *float64 `dynamo:"humidity,omitempty"`
	Moisture    *float64 `dynamo:"moisture,omitempty"`
}

func (it dynamoItem) record() Record {
	return Record{
		DeviceID:    it.DeviceID,
		Time:        reading.ParseTime(it.Time),
		TimeText:    it.Time,
		Zeitpunkt:   reading.ParseTime(it.Zeitpunkt),
		Latitude:    valueOf(it.Latitude),
		Longitude:   valueOf(it.Longitude),
		Temperature: valueOf(it.Temperature),
		Humidity:    valueOf(it.Humidity),
		Moisture:    valueOf(it.Moisture),
	}
}

// DynamoSource reads a DynamoDB sensor table.
type DynamoSource struct {
	table dynamo.Table
}

// NewDynamoSource connects with the default AWS credential chain. A
// non-empty endpoint targets DynamoDB Local.
func NewDynamoSource(cfg config.DynamoDBConfig) *DynamoSource {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	db := dynamo.New(session.New(), awsCfg)
	return &DynamoSource{table: db.Table(cfg.Table)}
}

// Fetch queries one device by hash key, or scans the table for all devices.
func (s *DynamoSource) Fetch(ctx context.Context, deviceID string) ([]Record, error) {
	var items []dynamoItem
	var err error
	if deviceID != "" {
		err = s.table.Get("deviceId", deviceID).AllWithContext(ctx, &items)
	} else {
		err = s.table.Scan().AllWithContext(ctx, &items)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.record())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
