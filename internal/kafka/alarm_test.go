package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"

	"github.com/jittakal/poolstore/pkg/mutation"
)

func TestAlarmPublisher_HandleStuck(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var alarm StuckAlarm
		if err := json.Unmarshal(val, &alarm); err != nil {
			return err
		}
		if alarm.Pool != "Pool#3" || alarm.DrainID != "d-1" {
			return errors.New("wrong pool or drain id")
		}
		if alarm.Count != 2 || alarm.Bytes != 5 {
			return errors.New("wrong count or bytes")
		}
		if alarm.Reason != "duplicate key" {
			return errors.New("wrong reason")
		}
		return nil
	})

	a := NewAlarmPublisher(producer, "pool-alarms", testLogger())
	batch := &mutation.Batch{
		Pool:      "Pool#3",
		DrainID:   "d-1",
		Payloads:  [][]byte{[]byte("ab"), []byte("cde")},
		Reason:    "duplicate key",
		CreatedAt: time.Now(),
	}
	if err := a.HandleStuck(context.Background(), batch); err != nil {
		t.Fatalf("HandleStuck() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestAlarmPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotConnected)

	a := NewAlarmPublisher(producer, "pool-alarms", testLogger())
	defer a.Close()

	err := a.HandleStuck(context.Background(), &mutation.Batch{Pool: "Pool#1"})
	if !errors.Is(err, sarama.ErrNotConnected) {
		t.Errorf("HandleStuck() error = %v, want ErrNotConnected", err)
	}
}
