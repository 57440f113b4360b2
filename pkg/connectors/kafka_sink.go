package connectors

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// KafkaSink serializes Events batches to JSON and produces them to a
// Kafka topic, adapted from the teacher's pkg/connectors.KafkaSink.
type KafkaSink struct {
	topic            string
	bootstrapServers string
	format           string
	keyBy            []string
}

// NewKafkaSink creates a Kafka sink connector.
func NewKafkaSink(topic, bootstrapServers, format string, keyBy []string) *KafkaSink {
	return &KafkaSink{topic: topic, bootstrapServers: bootstrapServers, format: format, keyBy: keyBy}
}

func (k *KafkaSink) Name() string                { return "kafka_sink" }
func (k *KafkaSink) InputKind() element.Kind     { return element.KindEvents }
func (k *KafkaSink) Location() operator.Location { return operator.Local }
func (k *KafkaSink) Detached() bool              { return true }

func (k *KafkaSink) InferOutput(in element.Kind) (element.Kind, error) {
	return noneFromEvents(k.Name(), in)
}

func (k *KafkaSink) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.bootstrapServers),
		kgo.DefaultProduceTopic(k.topic),
	)
	if err != nil {
		return nil, errs.Newf(errs.LogicError, k.Name(), "create client: %w", err)
	}
	return &kafkaSinkSequence{sink: k, input: input, client: client}, nil
}

type kafkaSinkSequence struct {
	sink   *KafkaSink
	input  operator.Sequence
	client *kgo.Client
	closed bool
}

func (s *kafkaSinkSequence) PollNext(ctx context.Context) (operator.Step, error) {
	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.Pending, operator.ReadyEmpty:
		return step, nil
	case operator.End:
		if !s.closed {
			s.client.Close()
			s.closed = true
		}
		return step, nil
	}

	ev := step.Value.(element.Events)
	err = s.write(ctx, ev.Record)
	ev.Release()
	if err != nil {
		return operator.Step{}, errs.New(errs.LogicError, s.sink.Name(), err)
	}
	return operator.Step{Kind: operator.ReadyEmpty}, nil
}

func (s *kafkaSinkSequence) write(ctx context.Context, batch arrow.Record) error {
	numRows := int(batch.NumRows())
	schema := batch.Schema()

	for row := 0; row < numRows; row++ {
		record := make(map[string]interface{}, schema.NumFields())
		for col := 0; col < schema.NumFields(); col++ {
			f := schema.Field(col)
			arr := batch.Column(col)
			if arr.IsNull(row) {
				record[f.Name] = nil
			} else {
				record[f.Name] = extractJSONValue(arr, row)
			}
		}

		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		rec := &kgo.Record{Value: value}

		if len(s.sink.keyBy) > 0 {
			keyParts := make(map[string]interface{}, len(s.sink.keyBy))
			for _, keyCol := range s.sink.keyBy {
				if v, ok := record[keyCol]; ok {
					keyParts[keyCol] = v
				}
			}
			keyBytes, _ := json.Marshal(keyParts)
			rec.Key = keyBytes
		}
		s.client.Produce(ctx, rec, nil)
	}
	return s.client.Flush(ctx)
}
