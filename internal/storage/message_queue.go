package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dex-sp/instruments"
)

// Record kinds.
const (
	KindTrace  = "trace"
	KindShot   = "shot"
	KindMarker = "marker"
)

// keep the latest entries per instrument list
const historyLength = 1000

// Record is one published measurement.
type Record struct {
	Address      string    `json:"address"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         string    `json:"kind"`
	FrequencyGHz []float64 `json:"frequency_ghz,omitempty"`
	Values       []float64 `json:"values"`
}

// TraceRecord converts a trace read into a record.
func TraceRecord(addr instruments.Address, data instruments.TraceData) *Record {
	return &Record{
		Address:      addr.String(),
		Timestamp:    data.Timestamp,
		Kind:         KindTrace,
		FrequencyGHz: data.FrequenciesGHz,
		Values:       data.PowersDBm,
	}
}

// ShotRecord records repeated marker readings taken at one frequency.
func ShotRecord(addr instruments.Address, at time.Time, freqGHz float64, readings []float64) *Record {
	return &Record{
		Address:      addr.String(),
		Timestamp:    at,
		Kind:         KindShot,
		FrequencyGHz: []float64{freqGHz},
		Values:       readings,
	}
}

// MarkerRecord records marker positions and amplitudes.
func MarkerRecord(addr instruments.Address, at time.Time, readings []instruments.MarkerReading) *Record {
	r := &Record{
		Address:      addr.String(),
		Timestamp:    at,
		Kind:         KindMarker,
		FrequencyGHz: make([]float64, 0, len(readings)),
		Values:       make([]float64, 0, len(readings)),
	}
	for _, m := range readings {
		r.FrequencyGHz = append(r.FrequencyGHz, m.FrequencyGHz)
		r.Values = append(r.Values, m.AmplitudeDBm)
	}
	return r
}

// ListKey is the redis list holding the history of addr.
func ListKey(addr string) string {
	return fmt.Sprintf("ceyear:%s:data", addr)
}

type MessageQueue struct {
	client  *redis.Client
	channel string
	log     logrus.FieldLogger
}

func NewMessageQueue(addr, password, channel string, db int, log logrus.FieldLogger) (*MessageQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", addr, err)
	}

	log.Infof("redis connected: %s", addr)

	return &MessageQueue{
		client:  client,
		channel: channel,
		log:     log,
	}, nil
}

// Publish sends record on the channel and keeps a bounded copy in the instrument list.
func (mq *MessageQueue) Publish(ctx context.Context, record *Record) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := mq.client.Publish(ctx, mq.channel, jsonData).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", mq.channel, err)
	}

	listKey := ListKey(record.Address)
	pipe := mq.client.TxPipeline()
	pipe.LPush(ctx, listKey, jsonData)
	pipe.LTrim(ctx, listKey, 0, historyLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		mq.log.Warnf("save to list %s failed: %v", listKey, err)
	}
	return nil
}

func (mq *MessageQueue) Close() error {
	return mq.client.Close()
}
