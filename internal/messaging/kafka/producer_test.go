package kafka

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"order_id":1}` {
			return errors.New("unexpected value " + string(val))
		}
		return nil
	})

	err := producer.PublishEvent(TopicOrderEvents, "1", map[string]int{"order_id": 1})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicOrderEvents, "1", map[string]int{"order_id": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	err := producer.PublishEvent(TopicOrderEvents, "1", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal event")
	require.NoError(t, mockProducer.Close())
}

func TestProducer_SendSetsHeaders(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			return errors.New("event type header is missing")
		}
		return nil
	})

	require.NoError(t, producer.Send(TopicOrderEvents, "42", []byte(`{}`), map[string]string{
		HeaderEventType: "order.created",
	}))
	require.NoError(t, mockProducer.Close())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil)
	require.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	envelope, err := DecodeEnvelope([]byte(`{"id":"m-1","aggregate_type":"order","aggregate_id":"7","event_type":"order.shipped","payload":{"status":"shipped"}}`))
	require.NoError(t, err)
	assert.Equal(t, "m-1", envelope.ID)
	assert.Equal(t, "7", envelope.AggregateID)
	assert.Equal(t, "order.shipped", envelope.EventType)
	assert.JSONEq(t, `{"status":"shipped"}`, string(envelope.Payload))

	_, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}
